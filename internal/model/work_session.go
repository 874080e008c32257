package model

import (
	"time"
)

// WorkSession is one continuous work period for a user, from login to logout
// or forced close. At most one session per user may be active at any instant;
// closed sessions are kept for reporting, never deleted.
type WorkSession struct {
	UUIDBase
	UserID       uint       `gorm:"index;index:idx_sessions_user_active,priority:1;not null" json:"userId"`
	SessionStart time.Time  `gorm:"not null;index" json:"sessionStart"`
	SessionEnd   *time.Time `json:"sessionEnd"`
	IsActive     bool       `gorm:"index;index:idx_sessions_user_active,priority:2;default:true" json:"isActive"`
	CurrentState UserState  `gorm:"type:varchar(20);not null;default:'desconectado'" json:"currentState"`

	StateTimeBreakdown StateMinutes `gorm:"type:json" json:"stateTimeBreakdown"`
	TotalMinutesWorked int          `gorm:"default:0" json:"totalMinutesWorked"`

	TotalChallengesReceived int `gorm:"default:0" json:"totalChallengesReceived"`
	TotalChallengesCorrect  int `gorm:"default:0" json:"totalChallengesCorrect"`

	NextChallengeAt *time.Time `json:"nextChallengeAt"`
	LastActivity    time.Time  `gorm:"index" json:"lastActivity"`

	ClosedBy    StateActor `gorm:"type:varchar(20)" json:"closedBy,omitempty"`
	CloseReason string     `gorm:"size:255" json:"closeReason,omitempty"`

	IPAddress string `gorm:"size:45" json:"-"`
	UserAgent string `gorm:"size:255" json:"-"`
}

func (WorkSession) TableName() string {
	return "work_sessions"
}

// SessionSummary is what logout/admin flows get back when a session closes.
type SessionSummary struct {
	SessionID             string       `json:"sessionId"`
	TotalMinutesInSession int          `json:"totalMinutesInSession"`
	TotalMinutesWorked    int          `json:"totalMinutesWorked"`
	StateBreakdown        StateMinutes `json:"stateBreakdown"`
}
