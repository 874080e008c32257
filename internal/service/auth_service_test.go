package service

import (
	"testing"
	"time"

	"presencia_backend/internal/config"
	"presencia_backend/internal/model"
	"presencia_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func (e *testEnv) newAuth() *AuthService {
	a := NewAuthService(e.users, e.audit, e.presence, nil, config.JWTConfig{
		Secret:     "test-secret-test-secret-test-secret!",
		ExpireTime: 12 * time.Hour,
	})
	a.now = e.clock.Now
	return a
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	auth := env.newAuth()

	input := RegisterInput{Name: "Marta Diaz", Email: "marta@example.com", Password: "supersecret", Sector: "support"}
	user, err := auth.Register(input)
	require.NoError(t, err)
	assert.Equal(t, model.Employee, user.Role)
	assert.Equal(t, model.TierStandard, user.ChallengeTier)

	// Password must be stored hashed.
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("supersecret")))

	_, err = auth.Register(input)
	assert.ErrorIs(t, err, util.ErrEmailRegistered)
}

func TestLoginOpensWorkSession(t *testing.T) {
	env := newTestEnv(t)
	auth := env.newAuth()

	_, err := auth.Register(RegisterInput{Name: "Marta Diaz", Email: "marta@example.com", Password: "supersecret", Sector: "support"})
	require.NoError(t, err)

	result, err := auth.Login("marta@example.com", "supersecret", RequestMeta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	require.NotNil(t, result.Session)
	assert.Equal(t, model.StateDesconectado, result.Session.CurrentState)

	count, err := env.sessions.CountActiveByUser(result.User.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestLoginRejectsBadCredentialsAndDisabled(t *testing.T) {
	env := newTestEnv(t)
	auth := env.newAuth()

	user, err := auth.Register(RegisterInput{Name: "Marta Diaz", Email: "marta@example.com", Password: "supersecret", Sector: "support"})
	require.NoError(t, err)

	_, err = auth.Login("marta@example.com", "wrongpass", RequestMeta{})
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)

	_, err = auth.Login("nobody@example.com", "supersecret", RequestMeta{})
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)

	require.NoError(t, env.users.SetDisabled(user.ID, true))
	_, err = auth.Login("marta@example.com", "supersecret", RequestMeta{})
	assert.ErrorIs(t, err, util.ErrUserDisabled)
}
