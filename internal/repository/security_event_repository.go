package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"adjusterhub/internal/model"
)

type SecurityEventRepository struct {
	db *gorm.DB
}

type SecurityEventFilter struct {
	Type      string
	IPAddress string
	UserID    uint
	Since     time.Time
	Limit     int
}

func NewSecurityEventRepository(db *gorm.DB) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

func (r *SecurityEventRepository) Create(event *model.SecurityEvent) error {
	if err := r.db.Create(event).Error; err != nil {
		return fmt.Errorf("create security event failed: %w", err)
	}
	return nil
}

func (r *SecurityEventRepository) List(filter SecurityEventFilter) ([]model.SecurityEvent, error) {
	q := r.db.Model(&model.SecurityEvent{})
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.IPAddress != "" {
		q = q.Where("ip_address = ?", filter.IPAddress)
	}
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var events []model.SecurityEvent
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list security events failed: %w", err)
	}
	return events, nil
}
