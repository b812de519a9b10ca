package model

import "time"

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

type SecurityEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Type      string    `gorm:"size:64;not null;index" json:"type"`
	Severity  string    `gorm:"size:16;not null;index" json:"severity"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	Email     string    `gorm:"size:128" json:"email,omitempty"`
	IPAddress string    `gorm:"size:64;index" json:"ip_address"`
	UserAgent string    `gorm:"size:512" json:"user_agent,omitempty"`
	Path      string    `gorm:"size:512" json:"path,omitempty"`
	Details   string    `gorm:"type:text" json:"details,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
