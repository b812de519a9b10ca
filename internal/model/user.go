package model

import "time"

const (
	RoleAdjuster = "adjuster"
	RoleFirm     = "firm"
	RoleAdmin    = "admin"
)

type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Name             string     `gorm:"size:128;not null" json:"name"`
	Email            string     `gorm:"size:128;not null;uniqueIndex" json:"email"`
	PasswordHash     string     `gorm:"size:255;not null" json:"-"`
	Role             string     `gorm:"size:16;not null;index" json:"role"`
	FirmID           *uint      `gorm:"index" json:"firm_id,omitempty"`
	Phone            string     `gorm:"size:32" json:"phone,omitempty"`
	LicenseState     string     `gorm:"size:2" json:"license_state,omitempty"`
	TOTPSecret       string     `gorm:"size:64" json:"-"`
	TwoFactorEnabled bool       `gorm:"not null;default:false" json:"two_factor_enabled"`
	TOTPLastStep     int64      `gorm:"not null;default:0" json:"-"`
	FailedLogins     int        `gorm:"not null;default:0" json:"-"`
	LockedUntil      *time.Time `json:"-"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsLocked reports whether a lockout window is still active at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
