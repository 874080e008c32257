package service

import (
	"errors"
	"time"

	"presencia_backend/internal/model"
	"presencia_backend/internal/repository"
	"presencia_backend/internal/util"
	"presencia_backend/pkg/logger"
	"presencia_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CredentialRevoker is the auth collaborator hook invoked when a two-strike
// failure kills a session: the account survives, its tokens do not.
type CredentialRevoker interface {
	RevokeUserCredentials(userID uint, reason string) error
}

// ChallengeService issues anti-idle challenges and resolves answers,
// including the two-strike escalation. It shares the per-user lock set with
// the presence engine so challenge mutations and session mutations are
// serialized together.
type ChallengeService struct {
	DB         *gorm.DB
	Users      *repository.UserRepository
	Sessions   *repository.SessionRepository
	Challenges *repository.ChallengeRepository
	Scheduler  *ChallengeScheduler
	Presence   *PresenceService
	Revoker    CredentialRevoker

	locks *SessionLockSet
	now   func() time.Time
}

func NewChallengeService(
	db *gorm.DB,
	users *repository.UserRepository,
	sessions *repository.SessionRepository,
	challenges *repository.ChallengeRepository,
	scheduler *ChallengeScheduler,
	presence *PresenceService,
	revoker CredentialRevoker,
	locks *SessionLockSet,
) *ChallengeService {
	return &ChallengeService{
		DB:         db,
		Users:      users,
		Sessions:   sessions,
		Challenges: challenges,
		Scheduler:  scheduler,
		Presence:   presence,
		Revoker:    revoker,
		locks:      locks,
		now:        time.Now,
	}
}

type IssuedChallenge struct {
	ChallengeID      string    `json:"challengeId"`
	Question         string    `json:"question"`
	TimeLimitSeconds int       `json:"timeLimitSeconds"`
	PopupTime        time.Time `json:"popupTime"`
	ExpiresAt        time.Time `json:"expiresAt"`
	IsFirstAttempt   bool      `json:"isFirstAttempt"`
}

type RespondResult struct {
	Result              model.ChallengeResult `json:"result"`
	ResponseTimeSeconds int                   `json:"responseTimeSeconds"`
	SecondChance        *IssuedChallenge      `json:"secondChance,omitempty"`
	SessionSummary      *model.SessionSummary `json:"sessionSummary,omitempty"`
}

// IssueChallenge creates a pending challenge for the user's active session.
// Unless forced, issuing before the scheduled due time is rejected; either
// way only one challenge may be pending per session.
func (s *ChallengeService) IssueChallenge(userID uint, force bool) (*IssuedChallenge, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

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

	now := s.now()
	if !force && session.NextChallengeAt != nil && now.Before(*session.NextChallengeAt) {
		return nil, util.ErrChallengeNotDue
	}

	if _, err := s.Challenges.FindPendingBySession(session.ID); err == nil {
		return nil, util.ErrChallengeAlreadyPending
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	exercise := s.Scheduler.NextExercise()
	challenge := &model.Challenge{
		UserID:           userID,
		SessionID:        session.ID,
		Question:         exercise.Question,
		CorrectAnswer:    exercise.Answer,
		PopupTime:        now,
		TimeLimitSeconds: s.Scheduler.TimeLimitSeconds,
		IsFirstAttempt:   true,
		Result:           model.ChallengePending,
	}

	next := s.Scheduler.NextChallengeTime(user.ChallengeTier, now)
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(challenge).Error; err != nil {
			return err
		}
		session.TotalChallengesReceived++
		session.NextChallengeAt = &next
		return tx.Save(session).Error
	})
	if err != nil {
		return nil, err
	}

	monitoring.ChallengesIssued.WithLabelValues("first").Inc()
	return &IssuedChallenge{
		ChallengeID:      challenge.ID,
		Question:         challenge.Question,
		TimeLimitSeconds: challenge.TimeLimitSeconds,
		PopupTime:        challenge.PopupTime,
		ExpiresAt:        challenge.ExpiresAt(),
		IsFirstAttempt:   true,
	}, nil
}

// Respond validates an answer against its pending challenge. The deadline
// dominates correctness: a right answer after the limit is still a timeout.
// The first failure in a cycle earns a fresh second-chance challenge, the
// second kills the session and revokes the user's credentials; that terminal
// outcome is reported as a result, not an error.
func (s *ChallengeService) Respond(challengeID string, userID uint, answer int) (*RespondResult, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	challenge, err := s.Challenges.FindByID(challengeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrChallengeNotFound
		}
		return nil, err
	}
	if challenge.UserID != userID {
		return nil, util.ErrChallengeNotOwned
	}
	if challenge.Result != model.ChallengePending {
		return nil, util.ErrChallengeAlreadyResolved
	}

	now := s.now()
	elapsed := int(now.Sub(challenge.PopupTime).Seconds())

	var outcome model.ChallengeResult
	switch {
	case elapsed > challenge.TimeLimitSeconds:
		outcome = model.ChallengeTimeout
	case answer == challenge.CorrectAnswer:
		outcome = model.ChallengeCorrect
	default:
		outcome = model.ChallengeIncorrect
	}

	challenge.UserAnswer = &answer
	challenge.AnsweredAt = &now
	challenge.ResponseTimeSeconds = &elapsed
	challenge.Result = outcome
	if err := s.Challenges.Update(challenge); err != nil {
		return nil, err
	}
	monitoring.ChallengesResolved.WithLabelValues(string(outcome)).Inc()

	result := &RespondResult{
		Result:              outcome,
		ResponseTimeSeconds: elapsed,
	}

	if outcome == model.ChallengeCorrect {
		if err := s.DB.Model(&model.WorkSession{}).
			Where("id = ?", challenge.SessionID).
			Update("total_challenges_correct", gorm.Expr("total_challenges_correct + 1")).Error; err != nil {
			return nil, err
		}
		return result, nil
	}

	if challenge.IsFirstAttempt {
		second, err := s.issueSecondChance(challenge, now)
		if err != nil {
			return nil, err
		}
		result.SecondChance = second
		return result, nil
	}

	// Second failure in the chain: the session dies, the account stays.
	summary, err := s.Presence.closeActiveSessionLocked(userID, model.ActorSystem, "two consecutive challenge failures")
	if err != nil && !errors.Is(err, util.ErrNoActiveSession) {
		return nil, err
	}
	if err := s.Revoker.RevokeUserCredentials(userID, "two consecutive challenge failures"); err != nil {
		logger.Log.Error("failed to revoke credentials after two-strike failure",
			zap.Uint("userId", userID),
			zap.Error(err))
	}

	logger.Log.Warn("session closed after two consecutive challenge failures",
		zap.Uint("userId", userID),
		zap.String("challengeId", challenge.ID))

	result.Result = model.ChallengeSessionClosed
	result.SessionSummary = summary
	return result, nil
}

func (s *ChallengeService) issueSecondChance(failed *model.Challenge, now time.Time) (*IssuedChallenge, error) {
	exercise := s.Scheduler.NextExercise()
	second := &model.Challenge{
		UserID:              failed.UserID,
		SessionID:           failed.SessionID,
		Question:            exercise.Question,
		CorrectAnswer:       exercise.Answer,
		PopupTime:           now,
		TimeLimitSeconds:    failed.TimeLimitSeconds,
		IsFirstAttempt:      false,
		PreviousChallengeID: &failed.ID,
		Result:              model.ChallengePending,
	}
	if err := s.Challenges.Create(second); err != nil {
		return nil, err
	}

	monitoring.ChallengesIssued.WithLabelValues("second_chance").Inc()
	return &IssuedChallenge{
		ChallengeID:      second.ID,
		Question:         second.Question,
		TimeLimitSeconds: second.TimeLimitSeconds,
		PopupTime:        second.PopupTime,
		ExpiresAt:        second.ExpiresAt(),
		IsFirstAttempt:   false,
	}, nil
}

// History returns the user's past challenges, newest first.
func (s *ChallengeService) History(userID uint, page, limit int) ([]model.Challenge, int64, error) {
	return s.Challenges.FindByUserPaged(userID, page, limit)
}
