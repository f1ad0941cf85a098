package forms

import (
	"github.com/google/uuid"

	"github.com/David-Byun/wemake/internal/models"
)

// MessageInput is the body of a send-message request.
type MessageInput struct {
	Content string `json:"content" validate:"required,max=2000"`
}

// Normalize trims the content and validates it.
func (in *MessageInput) Normalize() error {
	in.Content = clean(in.Content)
	return Validate(in)
}

// JoinInput creates a profile.
type JoinInput struct {
	Name     string `json:"name" validate:"required,max=50"`
	Username string `json:"username" validate:"required,username"`
}

// Normalize trims the fields and validates them.
func (in *JoinInput) Normalize() error {
	in.Name = clean(in.Name)
	in.Username = clean(in.Username)
	return Validate(in)
}

// SettingsInput updates the editable fields of a profile.
type SettingsInput struct {
	Name     string      `json:"name" validate:"required,max=50"`
	Role     models.Role `json:"role" validate:"required,oneof=developer designer marketer founder product-manager"`
	Headline string      `json:"headline" validate:"max=100"`
	Bio      string      `json:"bio" validate:"max=1000"`
}

// Normalize trims the fields and validates them.
func (in *SettingsInput) Normalize() error {
	in.Name = clean(in.Name)
	in.Headline = clean(in.Headline)
	in.Bio = clean(in.Bio)
	if in.Role == "" {
		in.Role = models.RoleDeveloper
	}
	return Validate(in)
}

// DirectMessage is a validated first-contact or follow-up message between two profiles.
type DirectMessage struct {
	From    uuid.UUID
	To      uuid.UUID
	Content string
}

// NewDirectMessage validates the participants and content of a direct message.
func NewDirectMessage(from, to uuid.UUID, content string) (DirectMessage, error) {
	in := MessageInput{Content: content}
	if err := in.Normalize(); err != nil {
		return DirectMessage{}, err
	}
	if from == uuid.Nil {
		return DirectMessage{}, FieldError("from", "is required")
	}
	if to == uuid.Nil {
		return DirectMessage{}, FieldError("to", "is required")
	}
	if from == to {
		return DirectMessage{}, FieldError("to", "cannot message yourself")
	}
	return DirectMessage{From: from, To: to, Content: in.Content}, nil
}
