package model

// All lists every persisted entity in migration order.
func All() []interface{} {
	return []interface{}{
		&Firm{},
		&User{},
		&Session{},
		&Claim{},
		&Earning{},
		&Payout{},
		&Message{},
		&Notification{},
		&Document{},
		&DocumentChunk{},
		&ChatSession{},
		&ChatMessage{},
		&SecurityEvent{},
		&AutomationLog{},
	}
}
