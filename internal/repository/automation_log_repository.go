package repository

import (
	"fmt"

	"gorm.io/gorm"

	"adjusterhub/internal/model"
)

type AutomationLogRepository struct {
	db *gorm.DB
}

func NewAutomationLogRepository(db *gorm.DB) *AutomationLogRepository {
	return &AutomationLogRepository{db: db}
}

func (r *AutomationLogRepository) Create(entry *model.AutomationLog) error {
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("create automation log failed: %w", err)
	}
	return nil
}

func (r *AutomationLogRepository) ListByClaimID(claimID uint) ([]model.AutomationLog, error) {
	var logs []model.AutomationLog
	if err := r.db.Where("claim_id = ?", claimID).Order("created_at DESC").Order("id DESC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list automation logs failed: %w", err)
	}
	return logs, nil
}
