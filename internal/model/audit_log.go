package model

// AuditLog records forced system actions so an admin can reconstruct why a
// session moved or died without reading application logs.
type AuditLog struct {
	BaseModel
	UserID    uint   `gorm:"index;not null" json:"userId"`
	SessionID string `gorm:"type:varchar(36);index" json:"sessionId"`
	Action    string `gorm:"size:50;not null" json:"action"`
	Detail    string `gorm:"size:255" json:"detail"`
	Actor     string `gorm:"size:20;not null" json:"actor"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

const (
	AuditForcedTransition  = "forced_transition"
	AuditForcedClose       = "forced_close"
	AuditStaleClose        = "stale_close"
	AuditStraySessionClose = "stray_session_close"
	AuditCredentialsRevoke = "credentials_revoked"
	AuditUserDisabled      = "user_disabled"
)
