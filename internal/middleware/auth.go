package middleware

import (
	"strings"
	"time"

	"presencia_backend/internal/config"
	"presencia_backend/internal/model"
	"presencia_backend/internal/service"
	"presencia_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer token and rejects revoked credentials.
// The raw token is stashed in the context so logout can blacklist it.
func AuthMiddleware(tokens *service.TokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		cfg := c.MustGet("config").(*config.Config)
		claims, err := util.ParseJWT(tokenString, cfg.JWT.Secret)
		if err != nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		issuedAt := time.Time{}
		if claims.IssuedAt != nil {
			issuedAt = claims.IssuedAt.Time
		}
		revoked, err := tokens.IsRevoked(c.Request.Context(), tokenString, claims.UserID, issuedAt)
		if err != nil || revoked {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set("user", claims)
		c.Set("token", tokenString)
		c.Next()
	}
}

func RoleMiddleware(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		hasRole := false
		for _, role := range roles {
			if user.Role == model.Admin || user.Role == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

type ActivityTracker interface {
	UpdateLastSeen(userID uint) error
}

type SessionToucher interface {
	TouchActivity(userID uint, at time.Time) error
}

// ActivityMiddleware records a heartbeat on every authenticated request.
// Updates run asynchronously so the request path never waits on them; the
// supervisor's stale sweep reads what this writes.
func ActivityMiddleware(users ActivityTracker, sessions SessionToucher) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		if claims != nil {
			userID := claims.UserID
			go func() {
				users.UpdateLastSeen(userID)
				sessions.TouchActivity(userID, time.Now())
			}()
		}
		c.Next()
	}
}
