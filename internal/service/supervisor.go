package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"presencia_backend/internal/model"
	"presencia_backend/internal/repository"
	"presencia_backend/pkg/logger"
	"presencia_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// WarningChannel is the redis pub/sub channel timeout warnings are published
// on, for frontends to surface "your lunch break ends in N minutes".
const WarningChannel = "presence:warnings"

type TimeoutWarning struct {
	UserID              uint            `json:"userId"`
	SessionID           string          `json:"sessionId"`
	State               model.UserState `json:"state"`
	MinutesInState      int             `json:"minutesInState"`
	MinutesUntilTimeout int             `json:"minutesUntilTimeout"`
	NextState           model.UserState `json:"nextState"`
}

// Supervisor is the background process enforcing per-state time limits. It
// scans active sessions on a fixed tick and asks the presence engine to apply
// whatever rule has been exceeded; an hourly sweep additionally closes
// sessions whose clients went silent without a logout. The supervisor never
// trusts its own bookkeeping between ticks: each scan re-reads live elapsed
// time, which is what makes a repeated scan a no-op.
type Supervisor struct {
	Sessions *repository.SessionRepository
	Ledger   *repository.LedgerRepository
	Presence *PresenceService
	Rules    *RuleTable
	Redis    *redis.Client

	Tick           time.Duration
	SweepInterval  time.Duration
	StaleThreshold time.Duration

	now    func() time.Time
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewSupervisor(
	sessions *repository.SessionRepository,
	ledger *repository.LedgerRepository,
	presence *PresenceService,
	rules *RuleTable,
	rdb *redis.Client,
	tick, sweepInterval, staleThreshold time.Duration,
) *Supervisor {
	return &Supervisor{
		Sessions:       sessions,
		Ledger:         ledger,
		Presence:       presence,
		Rules:          rules,
		Redis:          rdb,
		Tick:           tick,
		SweepInterval:  sweepInterval,
		StaleThreshold: staleThreshold,
		now:            time.Now,
	}
}

// Start launches the periodic scan and the stale-session sweep. Calling Start
// twice is a no-op; Stop cancels both loops and waits for them.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go s.loop(ctx, s.Tick, func() { s.ScanOnce(s.now()) })
	go s.loop(ctx, s.SweepInterval, func() { s.SweepStale(s.now()) })

	logger.Log.Info("timeout supervisor started",
		zap.Duration("tick", s.Tick),
		zap.Duration("sweepInterval", s.SweepInterval))
}

func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	logger.Log.Info("timeout supervisor stopped")
}

func (s *Supervisor) loop(ctx context.Context, interval time.Duration, fn func()) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// ScanOnce checks every active session against the rule table exactly once.
// Failures are isolated per session: one broken session is logged and
// skipped, the rest of the scan continues. Returns how many sessions were
// inspected and how many rules were applied.
func (s *Supervisor) ScanOnce(now time.Time) (processed, actions int) {
	sessions, err := s.Sessions.FindAllActive()
	if err != nil {
		logger.Log.Error("supervisor scan failed to load active sessions", zap.Error(err))
		return 0, 0
	}

	for i := range sessions {
		session := &sessions[i]
		acted, err := s.checkSession(session, now)
		if err != nil {
			logger.Log.Error("supervisor failed to process session",
				zap.String("sessionId", session.ID),
				zap.Uint("userId", session.UserID),
				zap.Error(err))
			continue
		}
		processed++
		if acted {
			actions++
		}
	}

	if actions > 0 {
		logger.Log.Info("supervisor scan completed",
			zap.Int("processed", processed),
			zap.Int("actions", actions))
	}
	return processed, actions
}

func (s *Supervisor) checkSession(session *model.WorkSession, now time.Time) (bool, error) {
	rule, ok := s.Rules.Get(session.CurrentState)
	if !ok {
		return false, nil
	}

	entry, err := s.Ledger.FindOpenBySession(session.ID)
	if err != nil {
		// A session without an open entry has nothing to time out.
		return false, nil
	}

	minutesInState := int(now.Sub(entry.StateStart).Minutes())

	if minutesInState >= rule.TimeoutMinutes {
		return s.Presence.ApplyTimeoutRule(session.UserID, rule)
	}

	if rule.WarningMinutes > 0 && minutesInState >= rule.WarningMinutes {
		s.emitWarning(TimeoutWarning{
			UserID:              session.UserID,
			SessionID:           session.ID,
			State:               session.CurrentState,
			MinutesInState:      minutesInState,
			MinutesUntilTimeout: rule.TimeoutMinutes - minutesInState,
			NextState:           rule.ToState,
		})
	}

	return false, nil
}

// emitWarning is deliberately non-mutating: nothing about the session
// changes, the signal only fans out to observers.
func (s *Supervisor) emitWarning(w TimeoutWarning) {
	monitoring.TimeoutWarnings.WithLabelValues(string(w.State)).Inc()
	logger.Log.Warn("state timeout approaching",
		zap.Uint("userId", w.UserID),
		zap.String("state", string(w.State)),
		zap.Int("minutesInState", w.MinutesInState),
		zap.Int("minutesUntilTimeout", w.MinutesUntilTimeout))

	if s.Redis == nil {
		return
	}
	payload, err := json.Marshal(w)
	if err != nil {
		return
	}
	if err := s.Redis.Publish(context.Background(), WarningChannel, payload).Err(); err != nil {
		logger.Log.Error("failed to publish timeout warning", zap.Error(err))
	}
}

// SweepStale closes sessions whose last activity predates the stale
// threshold. These are crashed or abandoned clients that never logged out.
func (s *Supervisor) SweepStale(now time.Time) int {
	cutoff := now.Add(-s.StaleThreshold)
	sessions, err := s.Sessions.FindStale(cutoff)
	if err != nil {
		logger.Log.Error("stale sweep failed to load sessions", zap.Error(err))
		return 0
	}

	closed := 0
	for i := range sessions {
		session := &sessions[i]
		if _, err := s.Presence.CloseSession(session.UserID, model.ActorSystem, "stale session cleanup"); err != nil {
			logger.Log.Error("failed to close stale session",
				zap.String("sessionId", session.ID),
				zap.Uint("userId", session.UserID),
				zap.Error(err))
			continue
		}
		s.Presence.audit(session.UserID, session.ID, model.AuditStaleClose,
			"stale session cleanup", model.ActorSystem)
		closed++
	}

	if closed > 0 {
		logger.Log.Info("stale session sweep completed", zap.Int("closed", closed))
	}
	return closed
}
