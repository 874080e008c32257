package model

import (
	"time"
)

type ChallengeResult string

const (
	ChallengePending       ChallengeResult = "pending"
	ChallengeCorrect       ChallengeResult = "correct"
	ChallengeIncorrect     ChallengeResult = "incorrect"
	ChallengeTimeout       ChallengeResult = "timeout"
	ChallengeSessionClosed ChallengeResult = "session_closed"
)

// Challenge is a timed anti-idle arithmetic question tied to a session. At
// most one pending challenge exists per session; a second-chance challenge
// points back at the failed one through PreviousChallengeID.
type Challenge struct {
	UUIDBase
	UserID    uint   `gorm:"index;not null" json:"userId"`
	SessionID string `gorm:"type:varchar(36);index;index:idx_challenges_session_result,priority:1;not null" json:"sessionId"`

	Question      string `gorm:"size:50;not null" json:"question"`
	CorrectAnswer int    `gorm:"not null" json:"-"`

	PopupTime        time.Time `gorm:"not null;index" json:"popupTime"`
	TimeLimitSeconds int       `gorm:"not null;default:60" json:"timeLimitSeconds"`

	UserAnswer          *int       `json:"userAnswer"`
	AnsweredAt          *time.Time `json:"answeredAt"`
	ResponseTimeSeconds *int       `json:"responseTimeSeconds"`

	// No column default on purpose: gorm omits zero values for defaulted
	// columns on insert, which would store a second-chance row as true.
	IsFirstAttempt      bool    `json:"isFirstAttempt"`
	PreviousChallengeID *string `gorm:"type:varchar(36)" json:"previousChallengeId"`

	Result ChallengeResult `gorm:"type:varchar(20);index:idx_challenges_session_result,priority:2;not null;default:'pending'" json:"result"`
}

func (Challenge) TableName() string {
	return "challenges"
}

func (c *Challenge) ExpiresAt() time.Time {
	return c.PopupTime.Add(time.Duration(c.TimeLimitSeconds) * time.Second)
}
