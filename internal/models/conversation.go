package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a direct-message room between a fixed pair of profiles.
type Conversation struct {
	ID        int64     `json:"conversation_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership links a profile to a conversation it may read and write.
type Membership struct {
	ConversationID int64     `json:"conversation_id"`
	ProfileID      uuid.UUID `json:"profile_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationSummary is one row of a user's inbox.
type ConversationSummary struct {
	ConversationID int64       `json:"conversation_id"`
	Other          Participant `json:"other"`
	LastMessage    string      `json:"last_message"`
	LastMessageAt  time.Time   `json:"last_message_at"`
}

// PairKey returns the canonical unordered key for two profile ids.
func PairKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return x + ":" + y
}
