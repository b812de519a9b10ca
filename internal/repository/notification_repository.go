package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"adjusterhub/internal/model"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(n *model.Notification) error {
	if err := r.db.Create(n).Error; err != nil {
		return fmt.Errorf("create notification failed: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListByUserID(userID uint, unreadOnly bool, page, size int) ([]model.Notification, error) {
	q := r.db.Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	page, size = normalizePage(page, size)
	var list []model.Notification
	if err := q.Order("created_at DESC").Order("id DESC").Offset((page - 1) * size).Limit(size).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list notifications failed: %w", err)
	}
	return list, nil
}

func (r *NotificationRepository) CountUnread(userID uint) (int64, error) {
	var total int64
	if err := r.db.Model(&model.Notification{}).Where("user_id = ? AND read_at IS NULL", userID).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count unread notifications failed: %w", err)
	}
	return total, nil
}

func (r *NotificationRepository) MarkRead(id, userID uint, at time.Time) (bool, error) {
	res := r.db.Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("mark notification read failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *NotificationRepository) MarkAllRead(userID uint, at time.Time) (int64, error) {
	res := r.db.Model(&model.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", at)
	if res.Error != nil {
		return 0, fmt.Errorf("mark all notifications read failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}
