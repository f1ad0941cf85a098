package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the self-declared occupation shown on a profile.
type Role string

const (
	RoleDeveloper      Role = "developer"
	RoleDesigner       Role = "designer"
	RoleMarketer       Role = "marketer"
	RoleFounder        Role = "founder"
	RoleProductManager Role = "product-manager"
)

// Profile represents a registered user.
type Profile struct {
	ID        uuid.UUID `json:"profile_id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar,omitempty"`
	Headline  string    `json:"headline,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Participant is the slice of a profile needed to render a message sender.
type Participant struct {
	ID     uuid.UUID `json:"profile_id"`
	Name   string    `json:"name"`
	Avatar string    `json:"avatar,omitempty"`
}
