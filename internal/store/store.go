// Package store defines the persistence contracts for users and conversations.
// Concrete backends live in the sqlite, postgres and mongo subpackages.
package store

import "context"

// UserStore persists accounts. Emails are unique.
type UserStore interface {
	// CreateUser inserts u. A duplicate email yields errs.ErrDuplicateAccount.
	CreateUser(ctx context.Context, u *User) error
	// GetUserByEmail returns errs.ErrNotFound when no account matches.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// GetUserByID returns errs.ErrNotFound when no account matches.
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// ConversationStore persists per-user chat history.
type ConversationStore interface {
	// GetConversation returns nil, nil when the user has no conversation yet.
	GetConversation(ctx context.Context, userID string) (*Conversation, error)
	// AppendTurns atomically appends turns in order, creating the conversation if needed.
	AppendTurns(ctx context.Context, userID string, turns ...Turn) error
}

// Store is what a backend must provide to run the service.
type Store interface {
	UserStore
	ConversationStore
	Close() error
}
