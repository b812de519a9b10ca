package model

import "time"

// Session is an issued login session. Tokens carry its ID and are only honoured while
// the row is unrevoked and unexpired.
type Session struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	IPAddress  string     `gorm:"size:64" json:"ip_address"`
	UserAgent  string     `gorm:"size:512" json:"user_agent"`
	ExpiresAt  time.Time  `gorm:"not null;index" json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastSeenAt time.Time  `json:"last_seen_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}
