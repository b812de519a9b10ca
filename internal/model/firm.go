package model

import "time"

type Firm struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"size:128;not null" json:"name"`
	Code            string    `gorm:"size:32;not null;uniqueIndex" json:"code"`
	ContactEmail    string    `gorm:"size:128" json:"contact_email,omitempty"`
	PortalConnector string    `gorm:"size:64" json:"portal_connector,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
