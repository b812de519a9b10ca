package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"adjusterhub/internal/model"
)

var ErrPayoutBelowMinimum = errors.New("available balance below payout minimum")

type EarningRepository struct {
	db *gorm.DB
}

func NewEarningRepository(db *gorm.DB) *EarningRepository {
	return &EarningRepository{db: db}
}

func (r *EarningRepository) Create(earning *model.Earning) error {
	if err := r.db.Create(earning).Error; err != nil {
		return fmt.Errorf("create earning failed: %w", err)
	}
	return nil
}

func (r *EarningRepository) ListByUserID(userID uint, status string) ([]model.Earning, error) {
	q := r.db.Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var earnings []model.Earning
	if err := q.Order("created_at DESC").Find(&earnings).Error; err != nil {
		return nil, fmt.Errorf("list earnings failed: %w", err)
	}
	return earnings, nil
}

// SumByStatus returns the user's earnings totals in cents keyed by status.
func (r *EarningRepository) SumByStatus(userID uint) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.db.Model(&model.Earning{}).
		Select("status, COALESCE(SUM(amount_cents), 0) AS total").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sum earnings failed: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) GetByID(id uint) (*model.Payout, error) {
	var payout model.Payout
	if err := r.db.First(&payout, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query payout failed: %w", err)
	}
	return &payout, nil
}

func (r *PayoutRepository) ListByUserID(userID uint) ([]model.Payout, error) {
	var payouts []model.Payout
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&payouts).Error; err != nil {
		return nil, fmt.Errorf("list payouts failed: %w", err)
	}
	return payouts, nil
}

// Request moves every available earning of userID into a new payout in one transaction.
// It rolls back with ErrPayoutBelowMinimum when the claimed total is under minCents.
func (r *PayoutRepository) Request(userID uint, minCents int64) (*model.Payout, error) {
	payout := &model.Payout{UserID: userID, Status: model.PayoutRequested}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(payout).Error; err != nil {
			return fmt.Errorf("create payout failed: %w", err)
		}
		res := tx.Model(&model.Earning{}).
			Where("user_id = ? AND status = ?", userID, model.EarningAvailable).
			Updates(map[string]interface{}{"status": model.EarningProcessing, "payout_id": payout.ID})
		if res.Error != nil {
			return fmt.Errorf("reserve earnings failed: %w", res.Error)
		}

		var total int64
		if err := tx.Model(&model.Earning{}).
			Select("COALESCE(SUM(amount_cents), 0)").
			Where("payout_id = ?", payout.ID).
			Scan(&total).Error; err != nil {
			return fmt.Errorf("sum reserved earnings failed: %w", err)
		}
		if total <= 0 || total < minCents {
			return ErrPayoutBelowMinimum
		}
		payout.AmountCents = total
		if err := tx.Model(payout).Update("amount_cents", total).Error; err != nil {
			return fmt.Errorf("update payout amount failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// Settle closes a requested payout. Paid payouts mark their earnings paid; failed payouts
// release them back to available.
func (r *PayoutRepository) Settle(id uint, paid bool, reference, reason string, at time.Time) (*model.Payout, error) {
	var payout model.Payout
	err := r.db.Transaction(func(tx *gorm.DB) error {
		status, earningStatus := model.PayoutFailed, model.EarningAvailable
		if paid {
			status, earningStatus = model.PayoutPaid, model.EarningPaid
		}
		res := tx.Model(&model.Payout{}).
			Where("id = ? AND status = ?", id, model.PayoutRequested).
			Updates(map[string]interface{}{
				"status":       status,
				"reference":    reference,
				"fail_reason":  reason,
				"processed_at": at,
			})
		if res.Error != nil {
			return fmt.Errorf("settle payout failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		earningUpdates := map[string]interface{}{"status": earningStatus}
		if !paid {
			earningUpdates["payout_id"] = nil
		}
		if err := tx.Model(&model.Earning{}).Where("payout_id = ?", id).Updates(earningUpdates).Error; err != nil {
			return fmt.Errorf("settle earnings failed: %w", err)
		}
		return tx.First(&payout, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &payout, nil
}
