package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"adjusterhub/internal/model"
)

type ClaimRepository struct {
	db *gorm.DB
}

type ClaimFilter struct {
	FirmID      uint
	AdjusterID  uint
	Statuses    []model.ClaimStatus
	State       string
	LossType    string
	MinFeeCents int64
	Query       string
	Page        int
	PageSize    int
}

func NewClaimRepository(db *gorm.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

func (r *ClaimRepository) Create(claim *model.Claim) error {
	if err := r.db.Create(claim).Error; err != nil {
		return fmt.Errorf("create claim failed: %w", err)
	}
	return nil
}

func (r *ClaimRepository) GetByID(id uint) (*model.Claim, error) {
	var claim model.Claim
	if err := r.db.First(&claim, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query claim by id failed: %w", err)
	}
	return &claim, nil
}

func (r *ClaimRepository) List(filter ClaimFilter) ([]model.Claim, int64, error) {
	q := r.db.Model(&model.Claim{})
	if filter.FirmID != 0 {
		q = q.Where("firm_id = ?", filter.FirmID)
	}
	if filter.AdjusterID != 0 {
		q = q.Where("adjuster_id = ?", filter.AdjusterID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.State != "" {
		q = q.Where("state = ?", strings.ToUpper(filter.State))
	}
	if filter.LossType != "" {
		q = q.Where("loss_type = ?", filter.LossType)
	}
	if filter.MinFeeCents > 0 {
		q = q.Where("fee_cents >= ?", filter.MinFeeCents)
	}
	if text := strings.TrimSpace(filter.Query); text != "" {
		like := "%" + text + "%"
		q = q.Where("title LIKE ? OR claim_number LIKE ? OR city LIKE ?", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count claims failed: %w", err)
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	var claims []model.Claim
	if err := q.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&claims).Error; err != nil {
		return nil, 0, fmt.Errorf("list claims failed: %w", err)
	}
	return claims, total, nil
}

func (r *ClaimRepository) Update(claim *model.Claim) error {
	if err := r.db.Save(claim).Error; err != nil {
		return fmt.Errorf("update claim failed: %w", err)
	}
	return nil
}

// Transition applies updates only while the claim is still in one of from. The bool is
// false when another request moved the claim first.
func (r *ClaimRepository) Transition(id uint, from []model.ClaimStatus, updates map[string]interface{}) (bool, error) {
	res := r.db.Model(&model.Claim{}).Where("id = ? AND status IN ?", id, from).Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("transition claim failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Complete moves a claim out of from and books earning in one transaction. The bool is
// false, and nothing is written, when another request moved the claim first.
func (r *ClaimRepository) Complete(id uint, from []model.ClaimStatus, updates map[string]interface{}, earning *model.Earning) (bool, error) {
	moved := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Claim{}).Where("id = ? AND status IN ?", id, from).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("complete claim failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if earning != nil {
			if err := tx.Create(earning).Error; err != nil {
				return fmt.Errorf("create earning failed: %w", err)
			}
		}
		moved = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return moved, nil
}

// CountByStatus groups claims of a firm (firmID != 0) or an adjuster.
func (r *ClaimRepository) CountByStatus(firmID, adjusterID uint) (map[model.ClaimStatus]int64, error) {
	var rows []struct {
		Status model.ClaimStatus
		Total  int64
	}
	q := r.db.Model(&model.Claim{}).Select("status, COUNT(*) AS total")
	if firmID != 0 {
		q = q.Where("firm_id = ?", firmID)
	}
	if adjusterID != 0 {
		q = q.Where("adjuster_id = ?", adjusterID)
	}
	if err := q.Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count claims by status failed: %w", err)
	}
	out := make(map[model.ClaimStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

// ListCompletedSince returns completed claims of an adjuster, newest first.
func (r *ClaimRepository) ListCompletedSince(adjusterID uint, since time.Time) ([]model.Claim, error) {
	var claims []model.Claim
	err := r.db.Where("adjuster_id = ? AND status = ? AND completed_at >= ?", adjusterID, model.ClaimCompleted, since).
		Order("completed_at DESC").
		Find(&claims).Error
	if err != nil {
		return nil, fmt.Errorf("list completed claims failed: %w", err)
	}
	return claims, nil
}

func (r *ClaimRepository) ListAssignedByFirm(firmID uint, since time.Time) ([]model.Claim, error) {
	var claims []model.Claim
	err := r.db.Where("firm_id = ? AND assigned_at IS NOT NULL AND created_at >= ?", firmID, since).
		Find(&claims).Error
	if err != nil {
		return nil, fmt.Errorf("list assigned claims failed: %w", err)
	}
	return claims, nil
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
