package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"adjusterhub/internal/model"
)

// SessionRepository stores login sessions.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(session *model.Session) error {
	if err := r.db.Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(id string) (*model.Session, error) {
	var session model.Session
	if err := r.db.Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) ListActiveByUserID(userID uint, now time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, now).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

// Revoke marks the session revoked. It reports false when no active session of userID matched.
func (r *SessionRepository) Revoke(id string, userID uint, at time.Time) (bool, error) {
	res := r.db.Model(&model.Session{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", id, userID).
		Update("revoked_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("revoke session failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *SessionRepository) Touch(id string, at time.Time) error {
	if err := r.db.Model(&model.Session{}).Where("id = ?", id).Update("last_seen_at", at).Error; err != nil {
		return fmt.Errorf("touch session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(before time.Time) (int64, error) {
	res := r.db.Where("expires_at < ? OR revoked_at < ?", before, before).Delete(&model.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired sessions failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}
