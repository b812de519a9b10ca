package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"adjusterhub/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by email failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByID(id uint) (*model.User, error) {
	var user model.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by id failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) ListByFirmID(firmID uint) ([]model.User, error) {
	var users []model.User
	if err := r.db.Where("firm_id = ?", firmID).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list firm users failed: %w", err)
	}
	return users, nil
}

// RecordFailedLogin increments the failure counter and, when lockUntil is set, locks the account.
func (r *UserRepository) RecordFailedLogin(id uint, failedLogins int, lockUntil *time.Time) error {
	updates := map[string]interface{}{"failed_logins": failedLogins}
	if lockUntil != nil {
		updates["locked_until"] = *lockUntil
	}
	if err := r.db.Model(&model.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("record failed login failed: %w", err)
	}
	return nil
}

func (r *UserRepository) RecordSuccessfulLogin(id uint, at time.Time) error {
	err := r.db.Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"failed_logins": 0,
		"locked_until":  nil,
		"last_login_at": at,
	}).Error
	if err != nil {
		return fmt.Errorf("record successful login failed: %w", err)
	}
	return nil
}

// ConsumeTOTPStep records step as the last accepted code. The bool is false when an
// equal or later step was already used.
func (r *UserRepository) ConsumeTOTPStep(id uint, step int64) (bool, error) {
	res := r.db.Model(&model.User{}).Where("id = ? AND totp_last_step < ?", id, step).Update("totp_last_step", step)
	if res.Error != nil {
		return false, fmt.Errorf("consume totp step failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *UserRepository) UpdateTwoFactor(id uint, secret string, enabled bool) error {
	err := r.db.Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"totp_secret":        secret,
		"two_factor_enabled": enabled,
	}).Error
	if err != nil {
		return fmt.Errorf("update two factor failed: %w", err)
	}
	return nil
}
