package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"adjusterhub/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

// Thread summarises the conversation with one counterpart.
type Thread struct {
	CounterpartID uint          `json:"counterpart_id"`
	Latest        model.Message `json:"latest"`
	Unread        int           `json:"unread"`
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(message *model.Message) error {
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

// Conversation lists messages between a and b, oldest first.
func (r *MessageRepository) Conversation(a, b uint, limit, offset int) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	var messages []model.Message
	err := r.db.Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", a, b, b, a).
		Order("created_at ASC").Order("id ASC").
		Offset(offset).Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list conversation failed: %w", err)
	}
	return messages, nil
}

// Threads folds the user's most recent messages into one entry per counterpart.
func (r *MessageRepository) Threads(userID uint, scan int) ([]Thread, error) {
	if scan <= 0 {
		scan = 500
	}
	var messages []model.Message
	err := r.db.Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Order("created_at DESC").Order("id DESC").
		Limit(scan).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list threads failed: %w", err)
	}

	index := make(map[uint]int)
	threads := make([]Thread, 0)
	for _, m := range messages {
		counterpart := m.SenderID
		if counterpart == userID {
			counterpart = m.RecipientID
		}
		i, ok := index[counterpart]
		if !ok {
			threads = append(threads, Thread{CounterpartID: counterpart, Latest: m})
			i = len(threads) - 1
			index[counterpart] = i
		}
		if m.RecipientID == userID && m.ReadAt == nil {
			threads[i].Unread++
		}
	}
	return threads, nil
}

func (r *MessageRepository) MarkRead(recipientID, senderID uint, at time.Time) (int64, error) {
	res := r.db.Model(&model.Message{}).
		Where("recipient_id = ? AND sender_id = ? AND read_at IS NULL", recipientID, senderID).
		Update("read_at", at)
	if res.Error != nil {
		return 0, fmt.Errorf("mark messages read failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}
