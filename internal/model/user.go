package model

import (
	"time"
)

type UserRole string

const (
	Employee UserRole = "employee"
	Admin    UserRole = "admin"
)

// ChallengeTier selects how often anti-idle challenges are scheduled for a
// user. The tier is derived externally from the weekly productivity average
// (>85% promotes to premium).
type ChallengeTier string

const (
	TierStandard ChallengeTier = "standard"
	TierPremium  ChallengeTier = "premium"
)

type User struct {
	BaseModel
	Name             string        `gorm:"size:100;not null" json:"name"`
	Email            string        `gorm:"size:100;unique;not null" json:"email"`
	Password         string        `gorm:"size:100;not null" json:"-"`
	Role             UserRole      `gorm:"type:varchar(20);default:'employee'" json:"role"`
	Sector           string        `gorm:"size:100" json:"sector"`
	Disabled         bool          `gorm:"default:false" json:"disabled"`
	CurrentState     UserState     `gorm:"type:varchar(20);default:'desconectado'" json:"currentState"`
	IsInSession      bool          `gorm:"default:false" json:"isInSession"`
	CurrentSessionID *string       `gorm:"type:varchar(36)" json:"currentSessionId"`
	ChallengeTier    ChallengeTier `gorm:"type:varchar(20);default:'standard'" json:"challengeTier"`
	LastLogin        time.Time     `json:"lastLogin"`
	LastActivity     time.Time     `json:"lastActivity"`
}

func (User) TableName() string {
	return "users"
}
