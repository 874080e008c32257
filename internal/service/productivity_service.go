package service

import (
	"math"
	"time"

	"presencia_backend/internal/model"
	"presencia_backend/internal/repository"
	"presencia_backend/internal/util"
	"presencia_backend/pkg/logger"

	"go.uber.org/zap"
)

const (
	// Expected productive minutes per workday, the denominator of the time
	// efficiency component.
	expectedDailyMinutes = 480

	timeWeight      = 0.6
	challengeWeight = 0.4

	// Weekly score a user needs to earn the short Friday.
	flexFridayThreshold = 85.0
	// Weekly score above which the user graduates to the premium
	// challenge tier (longer gaps between popups).
	premiumTierThreshold = 85.0
)

// ProductivityService computes daily and weekly productivity from the session
// ledger and the challenge record. Scores are derived on demand, never
// stored; the ledger is the single source of truth.
type ProductivityService struct {
	Users      *repository.UserRepository
	Sessions   *repository.SessionRepository
	Challenges *repository.ChallengeRepository

	now func() time.Time
}

func NewProductivityService(
	users *repository.UserRepository,
	sessions *repository.SessionRepository,
	challenges *repository.ChallengeRepository,
) *ProductivityService {
	return &ProductivityService{
		Users:      users,
		Sessions:   sessions,
		Challenges: challenges,
		now:        time.Now,
	}
}

type DailyMetrics struct {
	Date                 string                  `json:"date"`
	SessionsCount        int                     `json:"sessionsCount"`
	MinutesWorked        int                     `json:"minutesWorked"`
	MinutesInSession     int                     `json:"minutesInSession"`
	ChallengesReceived   int                     `json:"challengesReceived"`
	ChallengesCorrect    int                     `json:"challengesCorrect"`
	ChallengeAccuracy    float64                 `json:"challengeAccuracy"`
	AvgResponseSeconds   float64                 `json:"avgResponseSeconds"`
	TimeEfficiency       float64                 `json:"timeEfficiency"`
	ProductivityScore    float64                 `json:"productivityScore"`
	StateBreakdownTotals map[model.UserState]int `json:"stateBreakdown"`
}

type WeeklyReport struct {
	WeekStart        string              `json:"weekStart"`
	Days             []DailyMetrics      `json:"days"`
	AverageScore     float64             `json:"averageScore"`
	FlexFridayEarned bool                `json:"flexFridayEarned"`
	ChallengeTier    model.ChallengeTier `json:"challengeTier"`
}

// DailyMetricsFor aggregates one calendar day. Accuracy counts timeouts as
// misses, and unresolved challenges are ignored so an in-flight popup does
// not drag the score down.
func (s *ProductivityService) DailyMetricsFor(userID uint, day time.Time) (*DailyMetrics, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.Add(24 * time.Hour)

	sessions, err := s.Sessions.FindByUserBetween(userID, from, to)
	if err != nil {
		return nil, err
	}
	challenges, err := s.Challenges.FindByUserBetween(userID, from, to)
	if err != nil {
		return nil, err
	}

	m := &DailyMetrics{
		Date:                 from.Format("2006-01-02"),
		SessionsCount:        len(sessions),
		StateBreakdownTotals: make(map[model.UserState]int),
	}

	for i := range sessions {
		session := &sessions[i]
		m.MinutesWorked += session.TotalMinutesWorked
		for state, minutes := range session.StateTimeBreakdown {
			m.StateBreakdownTotals[state] += minutes
			m.MinutesInSession += minutes
		}
	}

	var resolved, responseSum int
	for i := range challenges {
		c := &challenges[i]
		switch c.Result {
		case model.ChallengePending, model.ChallengeSessionClosed:
			continue
		}
		m.ChallengesReceived++
		if c.Result == model.ChallengeCorrect {
			m.ChallengesCorrect++
		}
		if c.ResponseTimeSeconds != nil {
			resolved++
			responseSum += *c.ResponseTimeSeconds
		}
	}

	if m.ChallengesReceived > 0 {
		m.ChallengeAccuracy = round2(float64(m.ChallengesCorrect) / float64(m.ChallengesReceived) * 100)
	}
	if resolved > 0 {
		m.AvgResponseSeconds = round2(float64(responseSum) / float64(resolved))
	}
	m.TimeEfficiency = round2(math.Min(float64(m.MinutesWorked)/expectedDailyMinutes*100, 100))
	m.ProductivityScore = s.score(m)
	return m, nil
}

// score blends time efficiency and challenge accuracy. A day without any
// challenge is scored on time alone rather than penalized for the scheduler
// never firing.
func (s *ProductivityService) score(m *DailyMetrics) float64 {
	if m.ChallengesReceived == 0 {
		return round2(m.TimeEfficiency)
	}
	return round2(m.TimeEfficiency*timeWeight + m.ChallengeAccuracy*challengeWeight)
}

// WeeklyReportFor aggregates Monday through the given day's week end. Days
// without sessions do not count toward the average.
func (s *ProductivityService) WeeklyReportFor(userID uint, anyDay time.Time) (*WeeklyReport, error) {
	user, err := s.Users.FindByID(userID)
	if err != nil {
		return nil, util.ErrUserNotFound
	}

	weekday := int(anyDay.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := time.Date(anyDay.Year(), anyDay.Month(), anyDay.Day(), 0, 0, 0, 0, anyDay.Location()).
		AddDate(0, 0, -(weekday - 1))

	report := &WeeklyReport{
		WeekStart:     monday.Format("2006-01-02"),
		ChallengeTier: user.ChallengeTier,
	}

	var sum float64
	var worked int
	for i := 0; i < 7; i++ {
		day := monday.AddDate(0, 0, i)
		if day.After(s.now()) {
			break
		}
		m, err := s.DailyMetricsFor(userID, day)
		if err != nil {
			return nil, err
		}
		report.Days = append(report.Days, *m)
		if m.SessionsCount > 0 {
			sum += m.ProductivityScore
			worked++
		}
	}

	if worked > 0 {
		report.AverageScore = round2(sum / float64(worked))
	}
	report.FlexFridayEarned = report.AverageScore >= flexFridayThreshold
	return report, nil
}

// RefreshChallengeTier promotes or demotes the user's challenge tier from
// last week's average score. Meant to run on a weekly boundary.
func (s *ProductivityService) RefreshChallengeTier(userID uint) (model.ChallengeTier, error) {
	lastWeek := s.now().AddDate(0, 0, -7)
	report, err := s.WeeklyReportFor(userID, lastWeek)
	if err != nil {
		return "", err
	}

	tier := model.TierStandard
	if report.AverageScore > premiumTierThreshold {
		tier = model.TierPremium
	}
	if tier != report.ChallengeTier {
		if err := s.Users.SetChallengeTier(userID, tier); err != nil {
			return "", err
		}
		logger.Log.Info("challenge tier updated",
			zap.Uint("userId", userID),
			zap.String("tier", string(tier)),
			zap.Float64("weeklyScore", report.AverageScore))
	}
	return tier, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
