package model

import (
	"time"
)

// StateLedgerEntry is one timestamped occupancy of a single state within a
// session. Within a session at most one entry is open (StateEnd == nil); it
// is closed exactly once, by the next transition or by session closure.
type StateLedgerEntry struct {
	UUIDBase
	UserID          uint       `gorm:"index;not null" json:"userId"`
	SessionID       string     `gorm:"type:varchar(36);index;index:idx_ledger_session_open,priority:1;not null" json:"sessionId"`
	State           UserState  `gorm:"type:varchar(20);not null" json:"state"`
	StateStart      time.Time  `gorm:"not null;index" json:"stateStart"`
	StateEnd        *time.Time `gorm:"index:idx_ledger_session_open,priority:2" json:"stateEnd"`
	DurationMinutes *int       `json:"durationMinutes"`
	ChangedBy       StateActor `gorm:"type:varchar(20);not null;default:'user'" json:"changedBy"`
	Reason          string     `gorm:"size:255" json:"reason"`
	IPAddress       string     `gorm:"size:45" json:"-"`
	UserAgent       string     `gorm:"size:255" json:"-"`
}

func (StateLedgerEntry) TableName() string {
	return "state_ledger"
}
