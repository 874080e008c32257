package service

import (
	"testing"
	"time"

	"presencia_backend/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestNextChallengeTimeBounds(t *testing.T) {
	s := NewChallengeScheduler(60, 1)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 1000; i++ {
		next := s.NextChallengeTime(model.TierStandard, now)
		gap := next.Sub(now)
		assert.GreaterOrEqual(t, gap, 40*time.Minute)
		assert.LessOrEqual(t, gap, 60*time.Minute)
	}

	for i := 0; i < 1000; i++ {
		next := s.NextChallengeTime(model.TierPremium, now)
		gap := next.Sub(now)
		assert.GreaterOrEqual(t, gap, 40*time.Minute)
		assert.LessOrEqual(t, gap, 70*time.Minute)
	}
}

func TestNextExerciseAnswersInRange(t *testing.T) {
	s := NewChallengeScheduler(60, 2)

	for i := 0; i < 300; i++ {
		ex := s.NextExercise()
		assert.NotEmpty(t, ex.Question)
		assert.GreaterOrEqual(t, ex.Answer, 0)
		assert.LessOrEqual(t, ex.Answer, 18)
	}
}

func TestNextExerciseAvoidsRecentRepeats(t *testing.T) {
	s := NewChallengeScheduler(60, 3)

	var history []string
	for i := 0; i < 300; i++ {
		ex := s.NextExercise()
		start := len(history) - recentExerciseWindow
		if start < 0 {
			start = 0
		}
		for _, q := range history[start:] {
			assert.NotEqual(t, q, ex.Question)
		}
		history = append(history, ex.Question)
	}
}

func TestResetRegeneratesPool(t *testing.T) {
	s := NewChallengeScheduler(60, 4)
	initial := len(s.pool)

	for i := 0; i < 40; i++ {
		s.NextExercise()
	}
	assert.Less(t, len(s.pool), initial)

	s.Reset()
	assert.Equal(t, initial, len(s.pool))
	assert.Empty(t, s.recent)
}
