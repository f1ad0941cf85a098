package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/David-Byun/wemake/internal/models"
)

var (
	// ErrNotFound is returned by mutations whose target row does not exist
	// or is not visible to the caller.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("store: conflict")
)

// ProfileUpdate holds the editable profile fields.
type ProfileUpdate struct {
	Name     string
	Role     models.Role
	Headline string
	Bio      string
}

// NewNotification describes a notification to be created.
type NewNotification struct {
	Type      models.NotificationType
	SourceID  *uuid.UUID
	TargetID  uuid.UUID
	ProductID *int64
	PostID    *int64
}

// DirectSend is the outcome of creating a conversation with its first message.
type DirectSend struct {
	Conversation models.Conversation
	Message      models.Message
	// Created is false when a concurrent writer created the conversation first.
	Created bool
}

// DataStore defines the interface for persistent storage of profiles,
// conversations and notifications.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Profile operations
	CreateProfile(ctx context.Context, name, username string) (*models.Profile, error)
	GetProfileByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) error

	// Conversation operations
	FindDirectConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error)
	CreateDirectConversation(ctx context.Context, from, to uuid.UUID, content string) (*DirectSend, error)
	CountMembership(ctx context.Context, conversationID int64, profileID uuid.UUID) (int64, error)
	InsertMessage(ctx context.Context, conversationID int64, senderID uuid.UUID, content string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error)
	GetOtherParticipant(ctx context.Context, conversationID int64, profileID uuid.UUID) (*models.Participant, error)
	ListMembers(ctx context.Context, conversationID int64) ([]uuid.UUID, error)
	ListConversations(ctx context.Context, profileID uuid.UUID) ([]models.ConversationSummary, error)

	// Notification operations
	CreateNotification(ctx context.Context, n NewNotification) (*models.Notification, error)
	ListNotifications(ctx context.Context, targetID uuid.UUID) ([]models.Notification, error)
	CountUnseenNotifications(ctx context.Context, targetID uuid.UUID) (int64, error)
	MarkNotificationSeen(ctx context.Context, id int64, targetID uuid.UUID) error
}
