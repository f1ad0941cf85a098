package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is an immutable entry in a conversation.
type Message struct {
	ID             int64     `json:"message_id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
