package service

import (
	"sync"
	"testing"
	"time"

	"presencia_backend/internal/model"
	"presencia_backend/internal/repository"
	"presencia_backend/pkg/database"
	"presencia_backend/pkg/logger"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	logger.Log = zap.NewNop()
}

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{t: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeRevoker struct {
	mu      sync.Mutex
	revoked []uint
}

func (f *fakeRevoker) RevokeUserCredentials(userID uint, reason string) error {
	f.mu.Lock()
	f.revoked = append(f.revoked, userID)
	f.mu.Unlock()
	return nil
}

func (f *fakeRevoker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.revoked)
}

type testEnv struct {
	db         *gorm.DB
	users      *repository.UserRepository
	sessions   *repository.SessionRepository
	ledger     *repository.LedgerRepository
	challenges *repository.ChallengeRepository
	audit      *repository.AuditRepository

	clock     *fakeClock
	revoker   *fakeRevoker
	scheduler *ChallengeScheduler
	presence  *PresenceService
	challenge *ChallengeService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection only: a pooled :memory: sqlite would give each
	// connection its own empty database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	env := &testEnv{
		db:         db,
		users:      repository.NewUserRepository(db),
		sessions:   repository.NewSessionRepository(db),
		ledger:     repository.NewLedgerRepository(db),
		challenges: repository.NewChallengeRepository(db),
		audit:      repository.NewAuditRepository(db),
		clock:      newFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		revoker:    &fakeRevoker{},
		scheduler:  NewChallengeScheduler(60, 42),
	}

	locks := NewSessionLockSet()
	env.presence = NewPresenceService(db, env.users, env.sessions, env.ledger, env.challenges, env.audit, env.scheduler, locks)
	env.presence.now = env.clock.Now

	env.challenge = NewChallengeService(db, env.users, env.sessions, env.challenges, env.scheduler, env.presence, env.revoker, locks)
	env.challenge.now = env.clock.Now

	return env
}

func (e *testEnv) createUser(t *testing.T, tier model.ChallengeTier) *model.User {
	t.Helper()
	user := &model.User{
		Name:          "Marta Diaz",
		Email:         "marta@example.com",
		Password:      "hashed",
		Role:          model.Employee,
		Sector:        "support",
		CurrentState:  model.StateDesconectado,
		ChallengeTier: tier,
	}
	require.NoError(t, e.users.Create(user))
	return user
}

func (e *testEnv) openSession(t *testing.T, userID uint) *model.WorkSession {
	t.Helper()
	session, err := e.presence.OpenSession(userID, RequestMeta{IPAddress: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	return session
}

func (e *testEnv) newSupervisor() *Supervisor {
	rules := NewRuleTable([]model.TransitionRule{
		{FromState: model.StateActivo, ToState: model.StateAusente, TimeoutMinutes: 30, WarningMinutes: 25, Reason: "prolonged inactivity detected"},
		{FromState: model.StateBano, ToState: model.StateActivo, TimeoutMinutes: 15, WarningMinutes: 12, Reason: "restroom time limit exceeded"},
		{FromState: model.StateAlmuerzo, ToState: model.StateActivo, TimeoutMinutes: 90, WarningMinutes: 75, Reason: "lunch time limit exceeded"},
		{FromState: model.StateAusente, ToState: model.StateDesconectado, TimeoutMinutes: 60, WarningMinutes: 50, Reason: "prolonged absence, closing session"},
	})
	return NewSupervisor(e.sessions, e.ledger, e.presence, rules, nil, 2*time.Minute, time.Hour, 6*time.Hour)
}
