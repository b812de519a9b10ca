package app

import (
	"strings"
	"time"
	"unicode/utf8"

	"adjusterhub/internal/apperr"
	"adjusterhub/internal/model"
	"adjusterhub/internal/repository"
)

const maxMessageRunes = 5000

var ErrRecipientNotFound = apperr.New(apperr.KindNotFound, "recipient not found")

type MessageService struct {
	messageRepo *repository.MessageRepository
	userRepo    *repository.UserRepository
	notifier    *NotificationService
	now         func() time.Time
}

type SendInput struct {
	RecipientID uint
	ClaimID     *uint
	Body        string
}

func NewMessageService(
	messageRepo *repository.MessageRepository,
	userRepo *repository.UserRepository,
	notifier *NotificationService,
) *MessageService {
	return &MessageService{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		notifier:    notifier,
		now:         time.Now,
	}
}

func (s *MessageService) Send(senderID uint, input SendInput) (*model.Message, error) {
	body := strings.TrimSpace(input.Body)
	if senderID == 0 || input.RecipientID == 0 || senderID == input.RecipientID || body == "" {
		return nil, ErrInvalidInput
	}
	if utf8.RuneCountInString(body) > maxMessageRunes {
		return nil, ErrInvalidInput.WithDetails(map[string]string{"body": "max"})
	}
	recipient, err := s.userRepo.GetByID(input.RecipientID)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, ErrRecipientNotFound
	}
	sender, err := s.userRepo.GetByID(senderID)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, ErrUserNotFound
	}

	msg := &model.Message{
		SenderID:    senderID,
		RecipientID: recipient.ID,
		ClaimID:     input.ClaimID,
		Body:        body,
		CreatedAt:   s.now(),
	}
	if err := s.messageRepo.Create(msg); err != nil {
		return nil, err
	}

	preview := body
	if utf8.RuneCountInString(preview) > 120 {
		preview = string([]rune(preview)[:120]) + "..."
	}
	s.notifier.NotifyQuietly(recipient.ID, NotifyMessage, "New message from "+sender.Name, preview,
		map[string]interface{}{"message_id": msg.ID, "sender_id": senderID},
	)
	return msg, nil
}

func (s *MessageService) Conversation(userID, counterpartID uint, page, size int) ([]model.Message, error) {
	if userID == 0 || counterpartID == 0 {
		return nil, ErrInvalidInput
	}
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 100
	}
	return s.messageRepo.Conversation(userID, counterpartID, size, (page-1)*size)
}

func (s *MessageService) Threads(userID uint) ([]repository.Thread, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.messageRepo.Threads(userID, 0)
}

func (s *MessageService) MarkRead(userID, counterpartID uint) (int64, error) {
	if userID == 0 || counterpartID == 0 {
		return 0, ErrInvalidInput
	}
	return s.messageRepo.MarkRead(userID, counterpartID, s.now())
}
