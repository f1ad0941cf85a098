package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType enumerates what produced a notification.
type NotificationType string

const (
	NotificationFollow  NotificationType = "follow"
	NotificationReview  NotificationType = "review"
	NotificationReply   NotificationType = "reply"
	NotificationMention NotificationType = "mention"
)

// Notification is addressed to TargetID and optionally caused by SourceID.
type Notification struct {
	ID        int64            `json:"notification_id"`
	Type      NotificationType `json:"type"`
	Source    *Participant     `json:"source,omitempty"`
	TargetID  uuid.UUID        `json:"target_id"`
	ProductID *int64           `json:"product_id,omitempty"`
	PostID    *int64           `json:"post_id,omitempty"`
	Seen      bool             `json:"seen"`
	CreatedAt time.Time        `json:"created_at"`
}
