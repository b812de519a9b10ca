package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"adjusterhub/internal/model"
)

// HistoryCache keeps the newest messages of each assistant session in a Redis list
// capped at the prompt window. Every write sets a dirty marker that hides the list
// until the database has caught up; readers go to the database meanwhile.
type HistoryCache struct {
	client   *redisv9.Client
	ttl      time.Duration
	dirtyTTL time.Duration
	window   int
}

func NewHistoryCache(client *redisv9.Client, ttl, dirtyTTL time.Duration, window int) *HistoryCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if dirtyTTL <= 0 {
		dirtyTTL = 5 * time.Second
	}
	if window <= 0 {
		window = 20
	}
	return &HistoryCache{client: client, ttl: ttl, dirtyTTL: dirtyTTL, window: window}
}

// Window is the most messages kept per session.
func (c *HistoryCache) Window() int {
	return c.window
}

// Recent returns the cached messages, oldest first. The bool is false on a miss and
// while the session is marked dirty.
func (c *HistoryCache) Recent(ctx context.Context, sessionID uint) ([]model.ChatMessage, bool, error) {
	var dirty *redisv9.IntCmd
	var items *redisv9.StringSliceCmd
	_, err := c.client.Pipelined(ctx, func(pipe redisv9.Pipeliner) error {
		dirty = pipe.Exists(ctx, c.dirtyKey(sessionID))
		items = pipe.LRange(ctx, c.listKey(sessionID), 0, -1)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("redis read history failed: %w", err)
	}
	if dirty.Val() > 0 || len(items.Val()) == 0 {
		return nil, false, nil
	}

	messages := make([]model.ChatMessage, 0, len(items.Val()))
	for _, raw := range items.Val() {
		var msg model.ChatMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, false, fmt.Errorf("unmarshal cached message failed: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, true, nil
}

// Fill replaces the cached list with the tail of messages. It is a no-op while the
// session is dirty, or when a writer marks it dirty before the fill commits.
func (c *HistoryCache) Fill(ctx context.Context, sessionID uint, messages []model.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	if len(messages) > c.window {
		messages = messages[len(messages)-c.window:]
	}
	values := make([]interface{}, 0, len(messages))
	for i := range messages {
		payload, err := json.Marshal(&messages[i])
		if err != nil {
			return fmt.Errorf("marshal chat message failed: %w", err)
		}
		values = append(values, payload)
	}

	dirtyKey, listKey := c.dirtyKey(sessionID), c.listKey(sessionID)
	err := c.client.Watch(ctx, func(tx *redisv9.Tx) error {
		n, err := tx.Exists(ctx, dirtyKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
			pipe.Del(ctx, listKey)
			pipe.RPush(ctx, listKey, values...)
			pipe.Expire(ctx, listKey, c.ttl)
			return nil
		})
		return err
	}, dirtyKey)
	if errors.Is(err, redisv9.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis fill history failed: %w", err)
	}
	return nil
}

// Invalidate marks the session dirty and drops its list in one transaction.
func (c *HistoryCache) Invalidate(ctx context.Context, sessionID uint) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.Set(ctx, c.dirtyKey(sessionID), "1", c.dirtyTTL)
		pipe.Del(ctx, c.listKey(sessionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate history failed: %w", err)
	}
	return nil
}

// Forget removes everything cached for a deleted session.
func (c *HistoryCache) Forget(ctx context.Context, sessionID uint) error {
	if err := c.client.Del(ctx, c.listKey(sessionID), c.dirtyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis forget history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) listKey(sessionID uint) string {
	return fmt.Sprintf("adjusterhub:chat:%d:window", sessionID)
}

func (c *HistoryCache) dirtyKey(sessionID uint) string {
	return fmt.Sprintf("adjusterhub:chat:%d:dirty", sessionID)
}
