// Package event defines the envelope carried on the persistence queue.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeChatMessage   = "chat_message"
	TypeSecurityEvent = "security_event"
)

type Envelope struct {
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"published_at"`
}

func NewEnvelope(eventType string, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload failed: %w", eventType, err)
	}
	return Envelope{Type: eventType, Payload: raw, PublishedAt: time.Now().UTC()}, nil
}

func (e Envelope) Decode(out interface{}) error {
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload failed: %w", e.Type, err)
	}
	return nil
}
