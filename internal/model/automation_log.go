package model

import "time"

const (
	AutomationSuccess = "success"
	AutomationFailed  = "failed"
)

type AutomationLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ClaimID     uint      `gorm:"not null;index" json:"claim_id"`
	FirmID      uint      `gorm:"not null;index" json:"firm_id"`
	TriggeredBy uint      `gorm:"not null" json:"triggered_by"`
	Connector   string    `gorm:"size:64;not null" json:"connector"`
	Version     int       `gorm:"not null" json:"version"`
	Status      string    `gorm:"size:16;not null;index" json:"status"`
	Attempts    int       `gorm:"not null" json:"attempts"`
	FailedStep  string    `gorm:"size:64" json:"failed_step,omitempty"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	ExternalRef string    `gorm:"size:128" json:"external_ref,omitempty"`
	DurationMS  int64     `gorm:"not null" json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}
