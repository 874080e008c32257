package service

import (
	"testing"
	"time"

	"presencia_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) newProductivity() *ProductivityService {
	p := NewProductivityService(e.users, e.sessions, e.challenges)
	p.now = e.clock.Now
	return p
}

func (e *testEnv) seedClosedSession(t *testing.T, userID uint, start time.Time, workedMinutes int) {
	t.Helper()
	end := start.Add(time.Duration(workedMinutes) * time.Minute)
	breakdown := model.NewStateMinutes()
	breakdown[model.StateActivo] = workedMinutes
	session := &model.WorkSession{
		UserID:             userID,
		SessionStart:       start,
		SessionEnd:         &end,
		IsActive:           false,
		CurrentState:       model.StateDesconectado,
		StateTimeBreakdown: breakdown,
		TotalMinutesWorked: workedMinutes,
		LastActivity:       end,
		ClosedBy:           model.ActorUser,
		CloseReason:        "user logout",
	}
	require.NoError(t, e.sessions.Create(session))
}

func (e *testEnv) seedResolvedChallenge(t *testing.T, userID uint, at time.Time, correct bool, responseSec int) {
	t.Helper()
	answer := 7
	result := model.ChallengeCorrect
	if !correct {
		result = model.ChallengeIncorrect
	}
	answeredAt := at.Add(time.Duration(responseSec) * time.Second)
	challenge := &model.Challenge{
		UserID:              userID,
		SessionID:           model.GenerateUUID(),
		Question:            "3 + 4",
		CorrectAnswer:       7,
		PopupTime:           at,
		TimeLimitSeconds:    60,
		UserAnswer:          &answer,
		AnsweredAt:          &answeredAt,
		ResponseTimeSeconds: &responseSec,
		IsFirstAttempt:      true,
		Result:              result,
	}
	require.NoError(t, e.challenges.Create(challenge))
}

func TestDailyMetricsBlendsTimeAndChallenges(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	prod := env.newProductivity()

	day := env.clock.Now()
	env.seedClosedSession(t, user.ID, day, 240)
	env.seedResolvedChallenge(t, user.ID, day.Add(time.Hour), true, 20)
	env.seedResolvedChallenge(t, user.ID, day.Add(2*time.Hour), true, 30)

	m, err := prod.DailyMetricsFor(user.ID, day)
	require.NoError(t, err)

	assert.Equal(t, 1, m.SessionsCount)
	assert.Equal(t, 240, m.MinutesWorked)
	assert.Equal(t, 2, m.ChallengesReceived)
	assert.Equal(t, 2, m.ChallengesCorrect)
	assert.InDelta(t, 100.0, m.ChallengeAccuracy, 0.01)
	assert.InDelta(t, 25.0, m.AvgResponseSeconds, 0.01)
	assert.InDelta(t, 50.0, m.TimeEfficiency, 0.01)
	// 50 * 0.6 + 100 * 0.4
	assert.InDelta(t, 70.0, m.ProductivityScore, 0.01)
}

func TestDailyMetricsWithoutChallengesUsesTimeOnly(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	prod := env.newProductivity()

	day := env.clock.Now()
	env.seedClosedSession(t, user.ID, day, 480)

	m, err := prod.DailyMetricsFor(user.ID, day)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, m.TimeEfficiency, 0.01)
	assert.InDelta(t, 100.0, m.ProductivityScore, 0.01)
}

func TestDailyMetricsIgnoresPendingChallenges(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	env.openSession(t, user.ID)
	prod := env.newProductivity()

	_, err := env.challenge.IssueChallenge(user.ID, true)
	require.NoError(t, err)

	m, err := prod.DailyMetricsFor(user.ID, env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, m.ChallengesReceived)
}

func TestWeeklyReportFlexFriday(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	prod := env.newProductivity()

	// Monday March 10th 2025; clock starts at 09:00 that day.
	monday := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		day := monday.AddDate(0, 0, i)
		env.seedClosedSession(t, user.ID, day, 470)
		env.seedResolvedChallenge(t, user.ID, day.Add(time.Hour), true, 15)
	}
	env.clock.Advance(4 * 24 * time.Hour)

	report, err := prod.WeeklyReportFor(user.ID, env.clock.Now())
	require.NoError(t, err)

	assert.Equal(t, "2025-03-10", report.WeekStart)
	assert.Len(t, report.Days, 5)
	// 97.92 * 0.6 + 100 * 0.4 per worked day, days without sessions ignored.
	assert.Greater(t, report.AverageScore, 85.0)
	assert.True(t, report.FlexFridayEarned)
}

func TestWeeklyReportBelowThreshold(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	prod := env.newProductivity()

	monday := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	env.seedClosedSession(t, user.ID, monday, 200)
	env.clock.Advance(4 * 24 * time.Hour)

	report, err := prod.WeeklyReportFor(user.ID, env.clock.Now())
	require.NoError(t, err)
	assert.False(t, report.FlexFridayEarned)
}

func TestRefreshChallengeTierPromotesOnHighWeek(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	prod := env.newProductivity()

	// Seed last week with near-perfect days, then evaluate from this week.
	lastMonday := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		day := lastMonday.AddDate(0, 0, i)
		env.seedClosedSession(t, user.ID, day, 480)
		env.seedResolvedChallenge(t, user.ID, day.Add(time.Hour), true, 10)
	}

	tier, err := prod.RefreshChallengeTier(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierPremium, tier)

	fresh, err := env.users.FindByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierPremium, fresh.ChallengeTier)
}

func TestRefreshChallengeTierKeepsStandardOnLowWeek(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, model.TierStandard)
	prod := env.newProductivity()

	lastMonday := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	env.seedClosedSession(t, user.ID, lastMonday, 200)

	tier, err := prod.RefreshChallengeTier(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierStandard, tier)
}
