package store

import (
	"errors"
	"fmt"
	"time"
)

// Role tags a chat turn. Only the declared constants are valid.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// ErrInvalidRole is returned by ParseRole for anything outside the enum.
var ErrInvalidRole = errors.New("invalid role")

// ParseRole validates a role coming from storage or the wire.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleModel, RoleSystem:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

func (r Role) String() string { return string(r) }

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"createdAt"`
}

// Turn is one immutable role-tagged message of a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewTurn stamps a turn with the current UTC time.
func NewTurn(role Role, content string) Turn {
	return Turn{Role: role, Content: content, CreatedAt: time.Now().UTC()}
}

// Conversation is the ordered history owned by a single user.
type Conversation struct {
	UserID    string    `json:"userId"`
	Turns     []Turn    `json:"chatHistory"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
