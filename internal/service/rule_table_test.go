package service

import (
	"testing"

	"presencia_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleTableReplaceSwapsWholesale(t *testing.T) {
	table := NewRuleTable([]model.TransitionRule{
		{FromState: model.StateActivo, ToState: model.StateAusente, TimeoutMinutes: 30, WarningMinutes: 25},
		{FromState: model.StateBano, ToState: model.StateActivo, TimeoutMinutes: 15, WarningMinutes: 12},
	})

	rule, ok := table.Get(model.StateBano)
	require.True(t, ok)
	assert.Equal(t, 15, rule.TimeoutMinutes)

	// A reload that drops the baño rule disables its timeout entirely.
	table.Replace([]model.TransitionRule{
		{FromState: model.StateActivo, ToState: model.StateAusente, TimeoutMinutes: 45, WarningMinutes: 40},
	})

	_, ok = table.Get(model.StateBano)
	assert.False(t, ok)

	rule, ok = table.Get(model.StateActivo)
	require.True(t, ok)
	assert.Equal(t, 45, rule.TimeoutMinutes)

	assert.Len(t, table.Snapshot(), 1)
}
