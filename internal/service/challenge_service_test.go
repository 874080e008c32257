package service

import (
	"testing"
	"time"

	"presencia_backend/internal/model"
	"presencia_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) correctAnswerFor(t *testing.T, challengeID string) int {
	t.Helper()
	stored, err := e.challenges.FindByID(challengeID)
	require.NoError(t, err)
	return stored.CorrectAnswer
}

func TestIssueChallengeRequiresActiveSession(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)

	_, err := env.challenge.IssueChallenge(user.ID, true)
	assert.ErrorIs(t, err, util.ErrNoActiveSession)
}

func TestIssueChallengeNotDueBeforeSchedule(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	env.openSession(t, user.ID)

	_, err := env.challenge.IssueChallenge(user.ID, false)
	assert.ErrorIs(t, err, util.ErrChallengeNotDue)

	// Past the scheduled time the same call succeeds.
	env.clock.Advance(70 * time.Minute)
	issued, err := env.challenge.IssueChallenge(user.ID, false)
	require.NoError(t, err)
	assert.True(t, issued.IsFirstAttempt)
}

func TestIssueChallengeExclusivity(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	session := env.openSession(t, user.ID)

	_, err := env.challenge.IssueChallenge(user.ID, true)
	require.NoError(t, err)

	_, err = env.challenge.IssueChallenge(user.ID, true)
	assert.ErrorIs(t, err, util.ErrChallengeAlreadyPending)

	fresh, err := env.sessions.FindByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TotalChallengesReceived)
}

func TestIssueChallengeReschedulesNext(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	session := env.openSession(t, user.ID)

	env.clock.Advance(70 * time.Minute)
	_, err := env.challenge.IssueChallenge(user.ID, false)
	require.NoError(t, err)

	fresh, err := env.sessions.FindByID(session.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.NextChallengeAt)
	gap := fresh.NextChallengeAt.Sub(env.clock.Now())
	assert.GreaterOrEqual(t, gap, 30*time.Minute)
}

func TestRespondCorrectAnswer(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	session := env.openSession(t, user.ID)

	issued, err := env.challenge.IssueChallenge(user.ID, true)
	require.NoError(t, err)

	env.clock.Advance(20 * time.Second)
	result, err := env.challenge.Respond(issued.ChallengeID, user.ID, env.correctAnswerFor(t, issued.ChallengeID))
	require.NoError(t, err)

	assert.Equal(t, model.ChallengeCorrect, result.Result)
	assert.Equal(t, 20, result.ResponseTimeSeconds)
	assert.Nil(t, result.SecondChance)

	fresh, err := env.sessions.FindByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TotalChallengesCorrect)
	assert.True(t, fresh.IsActive)
}

func TestRespondDeadlineDominatesCorrectness(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	env.openSession(t, user.ID)

	issued, err := env.challenge.IssueChallenge(user.ID, true)
	require.NoError(t, err)

	// Right answer, 10 seconds too late: still a timeout.
	env.clock.Advance(70 * time.Second)
	result, err := env.challenge.Respond(issued.ChallengeID, user.ID, env.correctAnswerFor(t, issued.ChallengeID))
	require.NoError(t, err)

	assert.Equal(t, model.ChallengeTimeout, result.Result)
	require.NotNil(t, result.SecondChance)
	assert.False(t, result.SecondChance.IsFirstAttempt)
}

func TestRespondFirstFailureIssuesSecondChance(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	session := env.openSession(t, user.ID)

	issued, err := env.challenge.IssueChallenge(user.ID, true)
	require.NoError(t, err)

	wrong := env.correctAnswerFor(t, issued.ChallengeID) + 1
	result, err := env.challenge.Respond(issued.ChallengeID, user.ID, wrong)
	require.NoError(t, err)

	assert.Equal(t, model.ChallengeIncorrect, result.Result)
	require.NotNil(t, result.SecondChance)
	assert.Equal(t, issued.TimeLimitSeconds, result.SecondChance.TimeLimitSeconds)

	second, err := env.challenges.FindByID(result.SecondChance.ChallengeID)
	require.NoError(t, err)
	require.NotNil(t, second.PreviousChallengeID)
	assert.Equal(t, issued.ChallengeID, *second.PreviousChallengeID)
	assert.False(t, second.IsFirstAttempt)

	fresh, err := env.sessions.FindByID(session.ID)
	require.NoError(t, err)
	assert.True(t, fresh.IsActive)
	assert.Equal(t, 0, env.revoker.count())
}

func TestRespondSecondFailureClosesSession(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	session := env.openSession(t, user.ID)

	issued, err := env.challenge.IssueChallenge(user.ID, true)
	require.NoError(t, err)

	first, err := env.challenge.Respond(issued.ChallengeID, user.ID, env.correctAnswerFor(t, issued.ChallengeID)+1)
	require.NoError(t, err)
	require.NotNil(t, first.SecondChance)

	second, err := env.challenge.Respond(first.SecondChance.ChallengeID, user.ID, env.correctAnswerFor(t, first.SecondChance.ChallengeID)+1)
	require.NoError(t, err)

	assert.Equal(t, model.ChallengeSessionClosed, second.Result)
	require.NotNil(t, second.SessionSummary)
	assert.Equal(t, session.ID, second.SessionSummary.SessionID)
	assert.Equal(t, 1, env.revoker.count())

	fresh, err := env.sessions.FindByID(session.ID)
	require.NoError(t, err)
	assert.False(t, fresh.IsActive)
	assert.Equal(t, model.ActorSystem, fresh.ClosedBy)
	assert.Equal(t, "two consecutive challenge failures", fresh.CloseReason)
}

func TestRespondSecondChanceCorrectKeepsSession(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	session := env.openSession(t, user.ID)

	issued, err := env.challenge.IssueChallenge(user.ID, true)
	require.NoError(t, err)

	first, err := env.challenge.Respond(issued.ChallengeID, user.ID, env.correctAnswerFor(t, issued.ChallengeID)+1)
	require.NoError(t, err)
	require.NotNil(t, first.SecondChance)

	result, err := env.challenge.Respond(first.SecondChance.ChallengeID, user.ID, env.correctAnswerFor(t, first.SecondChance.ChallengeID))
	require.NoError(t, err)
	assert.Equal(t, model.ChallengeCorrect, result.Result)
	assert.Nil(t, result.SecondChance)

	fresh, err := env.sessions.FindByID(session.ID)
	require.NoError(t, err)
	assert.True(t, fresh.IsActive)
	assert.Equal(t, 0, env.revoker.count())
}

func TestRespondOwnershipAndResolution(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	env.openSession(t, user.ID)

	issued, err := env.challenge.IssueChallenge(user.ID, true)
	require.NoError(t, err)

	_, err = env.challenge.Respond(issued.ChallengeID, user.ID+99, 5)
	assert.ErrorIs(t, err, util.ErrChallengeNotOwned)

	_, err = env.challenge.Respond("no-such-id", user.ID, 5)
	assert.ErrorIs(t, err, util.ErrChallengeNotFound)

	_, err = env.challenge.Respond(issued.ChallengeID, user.ID, env.correctAnswerFor(t, issued.ChallengeID))
	require.NoError(t, err)

	_, err = env.challenge.Respond(issued.ChallengeID, user.ID, 5)
	assert.ErrorIs(t, err, util.ErrChallengeAlreadyResolved)
}
