package model

import "time"

const (
	EarningAvailable  = "available"
	EarningProcessing = "processing"
	EarningPaid       = "paid"
)

const (
	PayoutRequested = "requested"
	PayoutPaid      = "paid"
	PayoutFailed    = "failed"
)

type Earning struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	ClaimID     uint      `gorm:"not null;uniqueIndex" json:"claim_id"`
	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	Status      string    `gorm:"size:16;not null;index" json:"status"`
	PayoutID    *uint     `gorm:"index" json:"payout_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Payout struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	AmountCents int64      `gorm:"not null" json:"amount_cents"`
	Status      string     `gorm:"size:16;not null;index" json:"status"`
	Reference   string     `gorm:"size:128" json:"reference,omitempty"`
	FailReason  string     `gorm:"size:256" json:"fail_reason,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
