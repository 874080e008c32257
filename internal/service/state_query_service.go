package service

import (
	"errors"
	"time"

	"presencia_backend/internal/model"
	"presencia_backend/internal/repository"
	"presencia_backend/internal/util"

	"gorm.io/gorm"
)

// StateQueryService serves the read side of presence: current status, ledger
// history and the team overview. It never mutates, so it takes no locks.
type StateQueryService struct {
	Users    *repository.UserRepository
	Sessions *repository.SessionRepository
	Ledger   *repository.LedgerRepository
	Rules    *RuleTable

	now func() time.Time
}

func NewStateQueryService(
	users *repository.UserRepository,
	sessions *repository.SessionRepository,
	ledger *repository.LedgerRepository,
	rules *RuleTable,
) *StateQueryService {
	return &StateQueryService{
		Users:    users,
		Sessions: sessions,
		Ledger:   ledger,
		Rules:    rules,
		now:      time.Now,
	}
}

type CurrentStatus struct {
	UserID             uint               `json:"userId"`
	State              model.UserState    `json:"state"`
	InSession          bool               `json:"inSession"`
	SessionID          string             `json:"sessionId,omitempty"`
	StateStart         *time.Time         `json:"stateStart,omitempty"`
	MinutesInState     int                `json:"minutesInState"`
	StateBreakdown     model.StateMinutes `json:"stateBreakdown,omitempty"`
	TimeoutMinutes     int                `json:"timeoutMinutes,omitempty"`
	MinutesUntilForced int                `json:"minutesUntilForced,omitempty"`
	NextState          model.UserState    `json:"nextState,omitempty"`
}

type TeamMemberStatus struct {
	UserID         uint            `json:"userId"`
	Name           string          `json:"name"`
	Sector         string          `json:"sector"`
	State          model.UserState `json:"state"`
	MinutesInState int             `json:"minutesInState"`
}

// CurrentStatusFor reports the user's live state plus the timeout outlook:
// how long they have been in the state and when the supervisor would force
// them out of it. A user without a session is simply desconectado.
func (s *StateQueryService) CurrentStatusFor(userID uint) (*CurrentStatus, error) {
	if _, err := s.Users.FindByID(userID); err != nil {
		return nil, util.ErrUserNotFound
	}

	status := &CurrentStatus{
		UserID: userID,
		State:  model.StateDesconectado,
	}

	session, err := s.Sessions.FindActiveByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return status, nil
		}
		return nil, err
	}

	status.State = session.CurrentState
	status.InSession = true
	status.SessionID = session.ID
	status.StateBreakdown = session.StateTimeBreakdown

	entry, err := s.Ledger.FindOpenBySession(session.ID)
	if err == nil {
		status.StateStart = &entry.StateStart
		status.MinutesInState = int(s.now().Sub(entry.StateStart).Minutes())
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if rule, ok := s.Rules.Get(session.CurrentState); ok {
		status.TimeoutMinutes = rule.TimeoutMinutes
		status.NextState = rule.ToState
		remaining := rule.TimeoutMinutes - status.MinutesInState
		if remaining < 0 {
			remaining = 0
		}
		status.MinutesUntilForced = remaining
	}

	return status, nil
}

// HistoryFor pages through the user's ledger entries, newest first.
func (s *StateQueryService) HistoryFor(userID uint, page, limit int) ([]model.StateLedgerEntry, int64, error) {
	return s.Ledger.FindByUserPaged(userID, page, limit)
}

// SessionLedger returns the full ordered ledger of a single session.
func (s *StateQueryService) SessionLedger(sessionID string) ([]model.StateLedgerEntry, error) {
	return s.Ledger.FindBySession(sessionID)
}

// TeamOverview lists everyone currently in a session with their live state.
// Admin-only at the transport layer.
func (s *StateQueryService) TeamOverview() ([]TeamMemberStatus, error) {
	users, err := s.Users.FindInSession()
	if err != nil {
		return nil, err
	}

	overview := make([]TeamMemberStatus, 0, len(users))
	now := s.now()
	for i := range users {
		user := &users[i]
		member := TeamMemberStatus{
			UserID: user.ID,
			Name:   user.Name,
			Sector: user.Sector,
			State:  user.CurrentState,
		}
		if user.CurrentSessionID != nil {
			if entry, err := s.Ledger.FindOpenBySession(*user.CurrentSessionID); err == nil {
				member.MinutesInState = int(now.Sub(entry.StateStart).Minutes())
			}
		}
		overview = append(overview, member)
	}
	return overview, nil
}
