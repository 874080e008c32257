package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// UserState is the worker's current activity category. The set is closed:
// values are validated at the API boundary, never by ad-hoc string checks
// deeper in.
type UserState string

const (
	StateActivo       UserState = "activo"
	StateBano         UserState = "baño"
	StateAlmuerzo     UserState = "almuerzo"
	StateAusente      UserState = "ausente"
	StateLicencia     UserState = "licencia"
	StateDesconectado UserState = "desconectado"
)

var AllStates = []UserState{
	StateActivo,
	StateBano,
	StateAlmuerzo,
	StateAusente,
	StateLicencia,
	StateDesconectado,
}

func (s UserState) Valid() bool {
	for _, v := range AllStates {
		if s == v {
			return true
		}
	}
	return false
}

// StateActor records who drove a state transition.
type StateActor string

const (
	ActorUser   StateActor = "user"
	ActorSystem StateActor = "system"
	ActorAdmin  StateActor = "admin"
)

func (a StateActor) Valid() bool {
	return a == ActorUser || a == ActorSystem || a == ActorAdmin
}

// TransitionRule describes the automatic transition applied when a session
// has stayed in FromState for TimeoutMinutes. A rule whose ToState is
// desconectado closes the whole session instead of transitioning. States
// without a rule (licencia, desconectado by default) never time out.
type TransitionRule struct {
	FromState      UserState `mapstructure:"from" json:"from"`
	ToState        UserState `mapstructure:"to" json:"to"`
	TimeoutMinutes int       `mapstructure:"timeout_minutes" json:"timeoutMinutes"`
	WarningMinutes int       `mapstructure:"warning_minutes" json:"warningMinutes"`
	Reason         string    `mapstructure:"reason" json:"reason"`
}

// StateMinutes is the per-state minute breakdown of a session, stored as a
// JSON column.
type StateMinutes map[UserState]int

func NewStateMinutes() StateMinutes {
	m := make(StateMinutes, len(AllStates))
	for _, s := range AllStates {
		m[s] = 0
	}
	return m
}

func (m StateMinutes) Total() int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

func (m StateMinutes) Value() (driver.Value, error) {
	if m == nil {
		m = NewStateMinutes()
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *StateMinutes) Scan(value interface{}) error {
	if value == nil {
		*m = NewStateMinutes()
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StateMinutes", value)
	}
	if len(raw) == 0 {
		*m = NewStateMinutes()
		return nil
	}
	return json.Unmarshal(raw, m)
}
