package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	revokedTokenPrefix = "presence:revoked:token:"
	revokedUserPrefix  = "presence:revoked:user:"
)

// TokenStore keeps the JWT revocation blacklist in redis. Two granularities:
// a single token (normal logout) and everything a user holds (credential
// revocation after a two-strike failure or an admin deactivation). Keys carry
// the token lifetime as TTL so the blacklist cleans itself up.
type TokenStore struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewTokenStore(rdb *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{Redis: rdb, TTL: ttl}
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return revokedTokenPrefix + hex.EncodeToString(sum[:])
}

func userKey(userID uint) string {
	return fmt.Sprintf("%s%d", revokedUserPrefix, userID)
}

func (s *TokenStore) RevokeToken(ctx context.Context, token string) error {
	return s.Redis.Set(ctx, tokenKey(token), "1", s.TTL).Err()
}

// RevokeUser invalidates every token issued to the user before the given
// instant. Tokens minted afterwards (a fresh login) are unaffected.
func (s *TokenStore) RevokeUser(ctx context.Context, userID uint, at time.Time) error {
	return s.Redis.Set(ctx, userKey(userID), strconv.FormatInt(at.Unix(), 10), s.TTL).Err()
}

// IsRevoked reports whether the token itself is blacklisted or predates a
// user-wide revocation. Redis being unreachable fails closed.
func (s *TokenStore) IsRevoked(ctx context.Context, token string, userID uint, issuedAt time.Time) (bool, error) {
	if err := s.Redis.Get(ctx, tokenKey(token)).Err(); err == nil {
		return true, nil
	} else if err != redis.Nil {
		return true, err
	}

	val, err := s.Redis.Get(ctx, userKey(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return true, err
	}

	revokedAt, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return true, nil
	}
	return !issuedAt.After(time.Unix(revokedAt, 0)), nil
}
