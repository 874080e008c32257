package service

import (
	"context"
	"errors"
	"time"

	"presencia_backend/internal/config"
	"presencia_backend/internal/model"
	"presencia_backend/internal/repository"
	"presencia_backend/internal/util"
	"presencia_backend/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthService handles registration, login and logout. Authentication is
// deliberately entangled with presence: a login opens a work session and a
// logout closes it, so the session ledger always brackets the authenticated
// window.
type AuthService struct {
	Users    *repository.UserRepository
	Audit    *repository.AuditRepository
	Presence *PresenceService
	Tokens   *TokenStore
	JWT      config.JWTConfig

	now func() time.Time
}

func NewAuthService(
	users *repository.UserRepository,
	audit *repository.AuditRepository,
	presence *PresenceService,
	tokens *TokenStore,
	jwtCfg config.JWTConfig,
) *AuthService {
	return &AuthService{
		Users:    users,
		Audit:    audit,
		Presence: presence,
		Tokens:   tokens,
		JWT:      jwtCfg,
		now:      time.Now,
	}
}

type RegisterInput struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Sector   string `json:"sector" binding:"required"`
}

type LoginResult struct {
	Token   string             `json:"token"`
	User    *model.User        `json:"user"`
	Session *model.WorkSession `json:"session"`
}

func (s *AuthService) Register(input RegisterInput) (*model.User, error) {
	if _, err := s.Users.FindByEmail(input.Email); err == nil {
		return nil, util.ErrEmailRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		Name:          input.Name,
		Email:         input.Email,
		Password:      string(hashed),
		Role:          model.Employee,
		Sector:        input.Sector,
		CurrentState:  model.StateDesconectado,
		ChallengeTier: model.TierStandard,
		LastLogin:     now,
		LastActivity:  now,
	}
	if err := s.Users.Create(user); err != nil {
		return nil, err
	}

	logger.Log.Info("user registered",
		zap.Uint("userId", user.ID),
		zap.String("email", user.Email))
	return user, nil
}

// Login verifies credentials and opens a work session for the employee. A
// disabled account authenticates nowhere, regardless of password.
func (s *AuthService) Login(email, password string, meta RequestMeta) (*LoginResult, error) {
	user, err := s.Users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}
	if user.Disabled {
		return nil, util.ErrUserDisabled
	}

	token, err := util.GenerateJWT(user, s.JWT.Secret, s.JWT.ExpireTime)
	if err != nil {
		return nil, err
	}

	session, err := s.Presence.OpenSession(user.ID, meta)
	if err != nil {
		return nil, err
	}

	user.LastLogin = s.now()
	user.IsInSession = true
	user.CurrentState = session.CurrentState
	user.CurrentSessionID = &session.ID

	logger.Log.Info("user logged in",
		zap.Uint("userId", user.ID),
		zap.String("sessionId", session.ID))
	return &LoginResult{Token: token, User: user, Session: session}, nil
}

// Logout revokes the presented token and closes the active session. A logout
// without an active session still revokes the token.
func (s *AuthService) Logout(ctx context.Context, token string, userID uint) (*model.SessionSummary, error) {
	if err := s.Tokens.RevokeToken(ctx, token); err != nil {
		logger.Log.Error("failed to revoke token on logout",
			zap.Uint("userId", userID),
			zap.Error(err))
	}

	summary, err := s.Presence.CloseSession(userID, model.ActorUser, "user logout")
	if err != nil {
		if errors.Is(err, util.ErrNoActiveSession) {
			return nil, nil
		}
		return nil, err
	}
	return summary, nil
}

// RevokeUserCredentials blacklists every outstanding token the user holds.
// Invoked by the challenge resolver on a two-strike failure and by admin
// deactivation; the user must log in again to get back in.
func (s *AuthService) RevokeUserCredentials(userID uint, reason string) error {
	if err := s.Tokens.RevokeUser(context.Background(), userID, s.now()); err != nil {
		return err
	}

	if err := s.Audit.Create(&model.AuditLog{
		UserID: userID,
		Action: model.AuditCredentialsRevoke,
		Detail: reason,
		Actor:  string(model.ActorSystem),
	}); err != nil {
		logger.Log.Error("failed to write credential revocation audit entry",
			zap.Uint("userId", userID),
			zap.Error(err))
	}

	logger.Log.Warn("user credentials revoked",
		zap.Uint("userId", userID),
		zap.String("reason", reason))
	return nil
}

// DeactivateUser disables the account, closes any active session through the
// regular engine and revokes credentials. Admin-only.
func (s *AuthService) DeactivateUser(userID uint) error {
	user, err := s.Users.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrUserNotFound
		}
		return err
	}

	if _, err := s.Presence.CloseSession(user.ID, model.ActorAdmin, "account deactivated"); err != nil &&
		!errors.Is(err, util.ErrNoActiveSession) {
		return err
	}
	if err := s.Users.SetDisabled(user.ID, true); err != nil {
		return err
	}
	if err := s.RevokeUserCredentials(user.ID, "account deactivated"); err != nil {
		return err
	}

	if err := s.Audit.Create(&model.AuditLog{
		UserID: user.ID,
		Action: model.AuditUserDisabled,
		Detail: "account deactivated by administrator",
		Actor:  string(model.ActorAdmin),
	}); err != nil {
		logger.Log.Error("failed to write deactivation audit entry",
			zap.Uint("userId", user.ID),
			zap.Error(err))
	}
	return nil
}
