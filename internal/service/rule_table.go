package service

import (
	"sync"

	"presencia_backend/internal/model"
)

// RuleTable holds the state-timeout rules the supervisor applies. It is
// replaced wholesale on config reload, so reads take an RLock and never see a
// half-updated table.
type RuleTable struct {
	mu    sync.RWMutex
	rules map[model.UserState]model.TransitionRule
}

func NewRuleTable(rules []model.TransitionRule) *RuleTable {
	t := &RuleTable{}
	t.Replace(rules)
	return t
}

// Get returns the rule for a state. States without a rule never time out.
func (t *RuleTable) Get(state model.UserState) (model.TransitionRule, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rules[state]
	return r, ok
}

func (t *RuleTable) Replace(rules []model.TransitionRule) {
	m := make(map[model.UserState]model.TransitionRule, len(rules))
	for _, r := range rules {
		m[r.FromState] = r
	}
	t.mu.Lock()
	t.rules = m
	t.mu.Unlock()
}

func (t *RuleTable) Snapshot() []model.TransitionRule {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.TransitionRule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r)
	}
	return out
}
