package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"gwi.com/rag-assistant/internal/errs"
	"gwi.com/rag-assistant/internal/store"
)

const (
	insertUser   = `INSERT INTO users (id, name, email, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`
	selectUserBy = `SELECT id, name, email, password_hash, created_at FROM users WHERE `
	selectConv   = `SELECT created_at, updated_at FROM conversations WHERE user_id = $1`
	selectTurns  = `SELECT role, content, created_at FROM chat_turns WHERE user_id = $1 ORDER BY id ASC`
	upsertConv   = `INSERT INTO conversations (user_id, created_at, updated_at) VALUES ($1, $2, $2) ON CONFLICT (user_id) DO UPDATE SET updated_at = EXCLUDED.updated_at`
	insertTurn   = `INSERT INTO chat_turns (user_id, role, content, created_at) VALUES ($1, $2, $3, $4)`
)

// Store implements store.Store using PostgreSQL.
type Store struct{ db *DB }

var _ store.Store = (*Store)(nil)

// NewStore constructs a store over an open pool.
func NewStore(db *DB) *Store { return &Store{db: db} }

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// CreateUser inserts a user row; a unique violation on email is a duplicate account.
func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Pool.Exec(ctx, insertUser, u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrDuplicateAccount
	}
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUser(ctx, selectUserBy+"email = $1", email)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.getUser(ctx, selectUserBy+"id = $1", id)
}

func (s *Store) getUser(ctx context.Context, q string, arg string) (*store.User, error) {
	var u store.User
	err := s.db.Pool.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetConversation loads the conversation header and its turns in append order.
func (s *Store) GetConversation(ctx context.Context, userID string) (*store.Conversation, error) {
	conv := store.Conversation{UserID: userID, Turns: []store.Turn{}}
	if err := s.db.Pool.QueryRow(ctx, selectConv, userID).Scan(&conv.CreatedAt, &conv.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := s.db.Pool.Query(ctx, selectTurns, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t    store.Turn
			role string
		)
		if err := rows.Scan(&role, &t.Content, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.Role, err = store.ParseRole(role); err != nil {
			return nil, err
		}
		conv.Turns = append(conv.Turns, t)
	}
	return &conv, rows.Err()
}

// AppendTurns inserts all turns in one transaction so a turn pair is never split.
func (s *Store) AppendTurns(ctx context.Context, userID string, turns ...store.Turn) (err error) {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	if _, err = tx.Exec(ctx, upsertConv, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	for i, t := range turns {
		if _, err = tx.Exec(ctx, insertTurn, userID, t.Role.String(), t.Content, t.CreatedAt); err != nil {
			return fmt.Errorf("turn[%d]: %w", i, err)
		}
	}
	return nil
}
