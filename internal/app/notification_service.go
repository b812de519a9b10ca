package app

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"adjusterhub/internal/apperr"
	"adjusterhub/internal/model"
	"adjusterhub/internal/repository"
)

const (
	NotifyClaimAssigned   = "claim_assigned"
	NotifyClaimStarted    = "claim_started"
	NotifyClaimSubmitted  = "claim_submitted"
	NotifyClaimReleased   = "claim_released"
	NotifyClaimCompleted  = "claim_completed"
	NotifyClaimCancelled  = "claim_cancelled"
	NotifyMessage         = "message"
	NotifyPayoutPaid      = "payout_paid"
	NotifyPayoutFailed    = "payout_failed"
	NotifyAutomationError = "automation_failed"
)

var ErrNotificationNotFound = apperr.New(apperr.KindNotFound, "notification not found")

type NotificationService struct {
	repo *repository.NotificationRepository
	log  *zap.Logger
	now  func() time.Time
}

type NotificationPage struct {
	Items  []model.Notification `json:"items"`
	Unread int64                `json:"unread"`
}

func NewNotificationService(repo *repository.NotificationRepository, log *zap.Logger) *NotificationService {
	return &NotificationService{repo: repo, log: log, now: time.Now}
}

func (s *NotificationService) Notify(userID uint, kind, title, body string, data map[string]interface{}) (*model.Notification, error) {
	if userID == 0 || strings.TrimSpace(kind) == "" || strings.TrimSpace(title) == "" {
		return nil, ErrInvalidInput
	}
	n := &model.Notification{
		UserID: userID,
		Type:   kind,
		Title:  title,
		Body:   body,
	}
	if len(data) > 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		n.Data = string(raw)
	}
	if err := s.repo.Create(n); err != nil {
		return nil, err
	}
	return n, nil
}

// NotifyQuietly is Notify for side effects of another operation; failures are logged only.
func (s *NotificationService) NotifyQuietly(userID uint, kind, title, body string, data map[string]interface{}) {
	if _, err := s.Notify(userID, kind, title, body, data); err != nil {
		s.log.Warn("create notification failed",
			zap.Uint("user_id", userID),
			zap.String("type", kind),
			zap.Error(err),
		)
	}
}

func (s *NotificationService) List(userID uint, unreadOnly bool, page, size int) (*NotificationPage, error) {
	items, err := s.repo.ListByUserID(userID, unreadOnly, page, size)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnread(userID)
	if err != nil {
		return nil, err
	}
	return &NotificationPage{Items: items, Unread: unread}, nil
}

func (s *NotificationService) MarkRead(userID, id uint) error {
	ok, err := s.repo.MarkRead(id, userID, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *NotificationService) MarkAllRead(userID uint) (int64, error) {
	return s.repo.MarkAllRead(userID, s.now())
}

func (s *NotificationService) UnreadCount(userID uint) (int64, error) {
	return s.repo.CountUnread(userID)
}
