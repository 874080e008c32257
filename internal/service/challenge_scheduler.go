package service

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"presencia_backend/internal/model"
)

const (
	// Hard floor on the gap between challenges regardless of tier.
	minChallengeGapMinutes = 30
	// Exercises excluded from the pool because they were served recently.
	recentExerciseWindow = 10
	// Pool is rebuilt when fewer candidates than this remain.
	poolRefillThreshold = 5
)

type MathExercise struct {
	Question string
	Answer   int
}

// ChallengeScheduler owns challenge timing and the arithmetic question pool.
// The pool is instance state seeded per process, not a package global, so
// tests can build deterministic schedulers and Reset regenerates it cleanly.
type ChallengeScheduler struct {
	TimeLimitSeconds int

	mu     sync.Mutex
	rng    *rand.Rand
	pool   []MathExercise
	recent []string
}

func NewChallengeScheduler(timeLimitSeconds int, seed int64) *ChallengeScheduler {
	s := &ChallengeScheduler{
		TimeLimitSeconds: timeLimitSeconds,
		rng:              rand.New(rand.NewSource(seed)),
	}
	s.regeneratePool()
	return s
}

// NextChallengeTime computes when the next challenge is due. The jitter makes
// the schedule unpredictable enough to defeat naive auto-responders while the
// floor and the tier bases bound the interval:
//
//	premium:  base 50-60 min, jitter ±10  → [40, 70]
//	standard: base 45-55 min, jitter ±5   → [40, 60]
//
// both clamped to at least 30 minutes.
func (s *ChallengeScheduler) NextChallengeTime(tier model.ChallengeTier, now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	var base, jitter int
	if tier == model.TierPremium {
		base = 50 + s.rng.Intn(11)
		jitter = s.rng.Intn(21) - 10
	} else {
		base = 45 + s.rng.Intn(11)
		jitter = s.rng.Intn(11) - 5
	}

	minutes := base + jitter
	if minutes < minChallengeGapMinutes {
		minutes = minChallengeGapMinutes
	}
	return now.Add(time.Duration(minutes) * time.Minute)
}

// NextExercise draws a single-digit addition or subtraction whose result is
// non-negative and at most 18, avoiding questions served in the last few
// draws.
func (s *ChallengeScheduler) NextExercise() MathExercise {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pool) < poolRefillThreshold {
		s.regeneratePool()
	}

	i := s.rng.Intn(len(s.pool))
	ex := s.pool[i]
	s.pool = append(s.pool[:i], s.pool[i+1:]...)

	s.recent = append(s.recent, ex.Question)
	if len(s.recent) > recentExerciseWindow {
		s.recent = s.recent[len(s.recent)-recentExerciseWindow:]
	}

	return ex
}

// Reset discards pool and history and regenerates from scratch.
func (s *ChallengeScheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = nil
	s.regeneratePool()
}

func (s *ChallengeScheduler) regeneratePool() {
	full := make([]MathExercise, 0, 126)
	for i := 1; i <= 9; i++ {
		for j := 1; j <= 9; j++ {
			if i+j <= 18 {
				full = append(full, MathExercise{
					Question: fmt.Sprintf("%d + %d", i, j),
					Answer:   i + j,
				})
			}
			if i >= j {
				full = append(full, MathExercise{
					Question: fmt.Sprintf("%d - %d", i, j),
					Answer:   i - j,
				})
			}
		}
	}

	recentSet := make(map[string]bool, len(s.recent))
	for _, q := range s.recent {
		recentSet[q] = true
	}

	filtered := full[:0:0]
	for _, ex := range full {
		if !recentSet[ex.Question] {
			filtered = append(filtered, ex)
		}
	}

	// If exclusion starved the pool, fall back to the full set.
	if len(filtered) < 20 {
		filtered = full
	}
	s.pool = filtered
}
