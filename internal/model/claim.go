package model

import "time"

type ClaimStatus string

const (
	ClaimAvailable  ClaimStatus = "available"
	ClaimAssigned   ClaimStatus = "assigned"
	ClaimInProgress ClaimStatus = "in_progress"
	ClaimSubmitted  ClaimStatus = "submitted"
	ClaimCompleted  ClaimStatus = "completed"
	ClaimCancelled  ClaimStatus = "cancelled"
)

type Claim struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	FirmID      uint        `gorm:"not null;index" json:"firm_id"`
	AdjusterID  *uint       `gorm:"index" json:"adjuster_id,omitempty"`
	ClaimNumber string      `gorm:"size:64;not null;uniqueIndex" json:"claim_number"`
	Title       string      `gorm:"size:256;not null" json:"title"`
	Description string      `gorm:"type:text" json:"description"`
	LossType    string      `gorm:"size:32;index" json:"loss_type"`
	Address     string      `gorm:"size:256" json:"address"`
	City        string      `gorm:"size:128" json:"city"`
	State       string      `gorm:"size:2;index" json:"state"`
	FeeCents    int64       `gorm:"not null" json:"fee_cents"`
	Status      ClaimStatus `gorm:"size:16;not null;index" json:"status"`
	DueAt       *time.Time  `json:"due_at,omitempty"`
	AssignedAt  *time.Time  `json:"assigned_at,omitempty"`
	SubmittedAt *time.Time  `json:"submitted_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	ExternalRef string      `gorm:"size:128" json:"external_ref,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
