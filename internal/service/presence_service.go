package service

import (
	"errors"
	"math"
	"time"

	"presencia_backend/internal/model"
	"presencia_backend/internal/repository"
	"presencia_backend/internal/util"
	"presencia_backend/pkg/logger"
	"presencia_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PresenceService is the transition engine: it owns the work-session
// lifecycle and the state ledger. Every mutation of a user's session runs
// under that user's lock from the shared SessionLockSet, and the
// close-previous-entry / open-next-entry sequence runs in one transaction so
// a session can never hold two open ledger entries.
type PresenceService struct {
	DB         *gorm.DB
	Users      *repository.UserRepository
	Sessions   *repository.SessionRepository
	Ledger     *repository.LedgerRepository
	Challenges *repository.ChallengeRepository
	Audit      *repository.AuditRepository
	Scheduler  *ChallengeScheduler

	locks *SessionLockSet
	now   func() time.Time
}

func NewPresenceService(
	db *gorm.DB,
	users *repository.UserRepository,
	sessions *repository.SessionRepository,
	ledger *repository.LedgerRepository,
	challenges *repository.ChallengeRepository,
	audit *repository.AuditRepository,
	scheduler *ChallengeScheduler,
	locks *SessionLockSet,
) *PresenceService {
	return &PresenceService{
		DB:         db,
		Users:      users,
		Sessions:   sessions,
		Ledger:     ledger,
		Challenges: challenges,
		Audit:      audit,
		Scheduler:  scheduler,
		locks:      locks,
		now:        time.Now,
	}
}

type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type ChangeStateResult struct {
	NewState                    model.UserState `json:"newState"`
	StateStart                  time.Time       `json:"stateStart"`
	SessionID                   string          `json:"sessionId"`
	PreviousStateDurationMinute int             `json:"previousStateDurationMinutes"`
}

// OpenSession starts a new work period for the user. A stray active session
// left behind by a crash is force-closed first; that is an anomaly worth an
// audit entry, not an error the user can do anything about.
func (s *PresenceService) OpenSession(userID uint, meta RequestMeta) (*model.WorkSession, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	user, err := s.Users.FindByID(userID)
	if err != nil {
		return nil, util.ErrUserNotFound
	}

	if prior, err := s.Sessions.FindActiveByUser(userID); err == nil {
		logger.Log.Warn("stray active session found on login, force closing",
			zap.Uint("userId", userID),
			zap.String("sessionId", prior.ID))
		if _, err := s.closeSessionLocked(user, prior, model.ActorSystem, "stray session closed on new login"); err != nil {
			return nil, err
		}
		s.audit(userID, prior.ID, model.AuditStraySessionClose, "previous session still active on login", model.ActorSystem)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := s.now()
	next := s.Scheduler.NextChallengeTime(user.ChallengeTier, now)
	session := &model.WorkSession{
		UserID:             userID,
		SessionStart:       now,
		IsActive:           true,
		CurrentState:       model.StateDesconectado,
		StateTimeBreakdown: model.NewStateMinutes(),
		NextChallengeAt:    &next,
		LastActivity:       now,
		IPAddress:          meta.IPAddress,
		UserAgent:          meta.UserAgent,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		entry := &model.StateLedgerEntry{
			UserID:     userID,
			SessionID:  session.ID,
			State:      model.StateDesconectado,
			StateStart: now,
			ChangedBy:  model.ActorUser,
			Reason:     "session opened",
			IPAddress:  meta.IPAddress,
			UserAgent:  meta.UserAgent,
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		return tx.Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"is_in_session":      true,
			"current_session_id": session.ID,
			"current_state":      model.StateDesconectado,
			"last_login":         now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("work session opened",
		zap.Uint("userId", userID),
		zap.String("sessionId", session.ID))
	return session, nil
}

// ChangeState closes the current ledger entry, opens one for newState and
// syncs the denormalized state on session and user. Returns the duration of
// the closed state, zero when the session had no open entry.
func (s *PresenceService) ChangeState(userID uint, newState model.UserState, reason string, actor model.StateActor, meta RequestMeta) (*ChangeStateResult, error) {
	if !newState.Valid() {
		return nil, util.ErrInvalidState
	}
	if !actor.Valid() {
		return nil, util.ErrInvalidActor
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.Sessions.FindActiveByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrNoActiveSession
		}
		return nil, err
	}

	now := s.now()
	closedMinutes := 0

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		closedMinutes, err = s.closeOpenEntryTx(tx, session, now)
		if err != nil {
			return err
		}

		entry := &model.StateLedgerEntry{
			UserID:     userID,
			SessionID:  session.ID,
			State:      newState,
			StateStart: now,
			ChangedBy:  actor,
			Reason:     reason,
			IPAddress:  meta.IPAddress,
			UserAgent:  meta.UserAgent,
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		session.CurrentState = newState
		session.LastActivity = now
		if err := tx.Save(session).Error; err != nil {
			return err
		}

		return tx.Model(&model.User{}).Where("id = ?", userID).
			Update("current_state", newState).Error
	})
	if err != nil {
		return nil, err
	}

	return &ChangeStateResult{
		NewState:                    newState,
		StateStart:                  now,
		SessionID:                   session.ID,
		PreviousStateDurationMinute: closedMinutes,
	}, nil
}

// CloseSession ends the user's active session: the open ledger entry is
// closed, total worked minutes are recomputed from the productive state, and
// the denormalized user flags are cleared.
func (s *PresenceService) CloseSession(userID uint, closedBy model.StateActor, reason string) (*model.SessionSummary, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	return s.closeActiveSessionLocked(userID, closedBy, reason)
}

// closeActiveSessionLocked is the lock-free inner path, for callers that
// already hold the user's lock (the challenge resolver, the supervisor).
func (s *PresenceService) closeActiveSessionLocked(userID uint, closedBy model.StateActor, reason string) (*model.SessionSummary, error) {
	user, err := s.Users.FindByID(userID)
	if err != nil {
		return nil, util.ErrUserNotFound
	}

	session, err := s.Sessions.FindActiveByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrNoActiveSession
		}
		return nil, err
	}

	return s.closeSessionLocked(user, session, closedBy, reason)
}

func (s *PresenceService) closeSessionLocked(user *model.User, session *model.WorkSession, closedBy model.StateActor, reason string) (*model.SessionSummary, error) {
	now := s.now()

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := s.closeOpenEntryTx(tx, session, now); err != nil {
			return err
		}

		// A pending challenge dies with its session.
		if err := tx.Model(&model.Challenge{}).
			Where("session_id = ? AND result = ?", session.ID, model.ChallengePending).
			Update("result", model.ChallengeSessionClosed).Error; err != nil {
			return err
		}

		session.IsActive = false
		session.SessionEnd = &now
		session.CurrentState = model.StateDesconectado
		session.TotalMinutesWorked = session.StateTimeBreakdown[model.StateActivo]
		session.ClosedBy = closedBy
		session.CloseReason = reason
		session.NextChallengeAt = nil
		if err := tx.Save(session).Error; err != nil {
			return err
		}

		return tx.Model(&model.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
			"is_in_session":      false,
			"current_session_id": nil,
			"current_state":      model.StateDesconectado,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	monitoring.SessionsClosed.WithLabelValues(string(closedBy)).Inc()
	logger.Log.Info("work session closed",
		zap.Uint("userId", user.ID),
		zap.String("sessionId", session.ID),
		zap.String("closedBy", string(closedBy)),
		zap.String("reason", reason))

	return &model.SessionSummary{
		SessionID:             session.ID,
		TotalMinutesInSession: roundMinutes(now.Sub(session.SessionStart)),
		TotalMinutesWorked:    session.TotalMinutesWorked,
		StateBreakdown:        session.StateTimeBreakdown,
	}, nil
}

// ApplyTimeoutRule is the supervisor's entry point. The rule is re-validated
// under the user's lock against freshly read state, so a user transition that
// raced the tick makes this a no-op rather than a double transition.
func (s *PresenceService) ApplyTimeoutRule(userID uint, rule model.TransitionRule) (bool, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.Sessions.FindActiveByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if session.CurrentState != rule.FromState {
		return false, nil
	}

	entry, err := s.Ledger.FindOpenBySession(session.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	now := s.now()
	minutesInState := int(now.Sub(entry.StateStart).Minutes())
	if minutesInState < rule.TimeoutMinutes {
		return false, nil
	}

	if rule.ToState == model.StateDesconectado {
		// An involuntary logout, not a forced idle transition.
		user, err := s.Users.FindByID(userID)
		if err != nil {
			return false, err
		}
		if _, err := s.closeSessionLocked(user, session, model.ActorSystem, rule.Reason); err != nil {
			return false, err
		}
		s.audit(userID, session.ID, model.AuditForcedClose, rule.Reason, model.ActorSystem)
	} else {
		if err := s.forceTransitionLocked(session, rule, now); err != nil {
			return false, err
		}
		s.audit(userID, session.ID, model.AuditForcedTransition, rule.Reason, model.ActorSystem)
	}

	monitoring.ForcedTransitions.WithLabelValues(string(rule.FromState), string(rule.ToState)).Inc()
	return true, nil
}

func (s *PresenceService) forceTransitionLocked(session *model.WorkSession, rule model.TransitionRule, now time.Time) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := s.closeOpenEntryTx(tx, session, now); err != nil {
			return err
		}

		entry := &model.StateLedgerEntry{
			UserID:     session.UserID,
			SessionID:  session.ID,
			State:      rule.ToState,
			StateStart: now,
			ChangedBy:  model.ActorSystem,
			Reason:     rule.Reason,
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		session.CurrentState = rule.ToState
		if err := tx.Save(session).Error; err != nil {
			return err
		}

		return tx.Model(&model.User{}).Where("id = ?", session.UserID).
			Update("current_state", rule.ToState).Error
	})
}

// closeOpenEntryTx closes the session's open ledger entry, folding its
// duration into the breakdown. The session struct is mutated but not saved;
// callers persist it in the same transaction.
func (s *PresenceService) closeOpenEntryTx(tx *gorm.DB, session *model.WorkSession, now time.Time) (int, error) {
	var entry model.StateLedgerEntry
	err := tx.Where("session_id = ? AND state_end IS NULL", session.ID).
		Order("state_start DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}

	minutes := roundMinutes(now.Sub(entry.StateStart))
	if err := tx.Model(&model.StateLedgerEntry{}).Where("id = ?", entry.ID).Updates(map[string]interface{}{
		"state_end":        now,
		"duration_minutes": minutes,
	}).Error; err != nil {
		return 0, err
	}

	if session.StateTimeBreakdown == nil {
		session.StateTimeBreakdown = model.NewStateMinutes()
	}
	session.StateTimeBreakdown[entry.State] += minutes

	return minutes, nil
}

func (s *PresenceService) audit(userID uint, sessionID, action, detail string, actor model.StateActor) {
	entry := &model.AuditLog{
		UserID:    userID,
		SessionID: sessionID,
		Action:    action,
		Detail:    detail,
		Actor:     string(actor),
	}
	if err := s.Audit.Create(entry); err != nil {
		logger.Log.Error("failed to write audit entry",
			zap.Uint("userId", userID),
			zap.String("action", action),
			zap.Error(err))
	}
}

func roundMinutes(d time.Duration) int {
	return int(math.Round(d.Seconds() / 60.0))
}
