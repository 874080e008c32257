package service

import (
	"testing"
	"time"

	"presencia_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanOnceForcesTimedOutTransition(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	session := env.openSession(t, user.ID)
	sup := env.newSupervisor()

	_, err := env.presence.ChangeState(user.ID, model.StateActivo, "", model.ActorUser, RequestMeta{})
	require.NoError(t, err)
	env.clock.Advance(31 * time.Minute)

	processed, actions := sup.ScanOnce(env.clock.Now())
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, actions)

	fresh, err := env.sessions.FindByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateAusente, fresh.CurrentState)

	// The scan is idempotent: the forced transition reset the state clock,
	// so an immediate rescan does nothing.
	processed, actions = sup.ScanOnce(env.clock.Now())
	assert.Equal(t, 1, processed)
	assert.Equal(t, 0, actions)
}

func TestScanOnceWarningDoesNotMutate(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	session := env.openSession(t, user.ID)
	sup := env.newSupervisor()

	_, err := env.presence.ChangeState(user.ID, model.StateActivo, "", model.ActorUser, RequestMeta{})
	require.NoError(t, err)
	env.clock.Advance(26 * time.Minute)

	_, actions := sup.ScanOnce(env.clock.Now())
	assert.Equal(t, 0, actions)

	fresh, err := env.sessions.FindByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateActivo, fresh.CurrentState)

	entries, err := env.ledger.FindBySession(session.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestScanOnceClosesSessionOnDesconectadoRule(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	session := env.openSession(t, user.ID)
	sup := env.newSupervisor()

	_, err := env.presence.ChangeState(user.ID, model.StateAusente, "", model.ActorUser, RequestMeta{})
	require.NoError(t, err)
	env.clock.Advance(61 * time.Minute)

	_, actions := sup.ScanOnce(env.clock.Now())
	assert.Equal(t, 1, actions)

	fresh, err := env.sessions.FindByID(session.ID)
	require.NoError(t, err)
	assert.False(t, fresh.IsActive)
	assert.Equal(t, model.ActorSystem, fresh.ClosedBy)
}

func TestScanOnceHandlesMultipleSessions(t *testing.T) {
	env := newTestEnv(t)
	userA := env.createUser(t, model.TierStandard)
	userB := &model.User{
		Name:         "Luis Perez",
		Email:        "luis@example.com",
		Password:     "hashed",
		Role:         model.Employee,
		CurrentState: model.StateDesconectado,
	}
	require.NoError(t, env.users.Create(userB))

	env.openSession(t, userA.ID)
	env.openSession(t, userB.ID)
	sup := env.newSupervisor()

	_, err := env.presence.ChangeState(userA.ID, model.StateBano, "", model.ActorUser, RequestMeta{})
	require.NoError(t, err)
	_, err = env.presence.ChangeState(userB.ID, model.StateActivo, "", model.ActorUser, RequestMeta{})
	require.NoError(t, err)

	// Only userA's restroom break exceeds its limit.
	env.clock.Advance(16 * time.Minute)

	processed, actions := sup.ScanOnce(env.clock.Now())
	assert.Equal(t, 2, processed)
	assert.Equal(t, 1, actions)

	freshA, err := env.users.FindByID(userA.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateActivo, freshA.CurrentState)

	freshB, err := env.users.FindByID(userB.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateActivo, freshB.CurrentState)
}

func TestSweepStaleClosesAbandonedSessions(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	session := env.openSession(t, user.ID)
	sup := env.newSupervisor()

	env.clock.Advance(7 * time.Hour)

	closed := sup.SweepStale(env.clock.Now())
	assert.Equal(t, 1, closed)

	fresh, err := env.sessions.FindByID(session.ID)
	require.NoError(t, err)
	assert.False(t, fresh.IsActive)
	assert.Equal(t, "stale session cleanup", fresh.CloseReason)

	audits, total, err := env.audit.FindByUserPaged(user.ID, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, model.AuditStaleClose, audits[0].Action)
	assert.Equal(t, session.ID, audits[0].SessionID)

	// Nothing left to sweep.
	assert.Equal(t, 0, sup.SweepStale(env.clock.Now()))
}

func TestSweepStaleSkipsRecentlyActive(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	session := env.openSession(t, user.ID)
	sup := env.newSupervisor()

	env.clock.Advance(5 * time.Hour)
	require.NoError(t, env.sessions.TouchActivity(user.ID, env.clock.Now()))
	env.clock.Advance(3 * time.Hour)

	assert.Equal(t, 0, sup.SweepStale(env.clock.Now()))

	fresh, err := env.sessions.FindByID(session.ID)
	require.NoError(t, err)
	assert.True(t, fresh.IsActive)
}
