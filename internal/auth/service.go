// Package auth issues and verifies session tokens and manages credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gwi.com/rag-assistant/internal/errs"
	"gwi.com/rag-assistant/internal/store"
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// dummyHash is compared against on unknown emails so both failure paths cost the same.
var dummyHash, _ = HashPassword("not-a-real-password")

// Session is the result of a successful login or signup.
type Session struct {
	User      *store.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

type Service struct {
	users  store.UserStore
	tokens *TokenIssuer
	log    *zap.Logger
}

func NewService(users store.UserStore, tokens *TokenIssuer, log *zap.Logger) *Service {
	return &Service{users: users, tokens: tokens, log: log}
}

// Login never reveals whether the email exists.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", errs.ErrInvalidRequest)
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("lookup user: %w", err)
		}
		CheckPasswordHash(password, dummyHash)
		return nil, errs.ErrInvalidCredentials
	}
	if !CheckPasswordHash(password, u.PasswordHash) {
		s.log.Info("failed login attempt", zap.String("userId", u.ID))
		return nil, errs.ErrInvalidCredentials
	}
	return s.issue(u)
}

// Signup registers a new account and logs it in.
func (s *Service) Signup(ctx context.Context, email, password, name string) (*Session, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || password == "" || name == "" {
		return nil, fmt.Errorf("%w: email, password and name are required", errs.ErrInvalidRequest)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: malformed email", errs.ErrInvalidRequest)
	}
	if len(password) > maxPasswordBytes {
		return nil, fmt.Errorf("%w: password too long", errs.ErrInvalidRequest)
	}

	switch _, err := s.users.GetUserByEmail(ctx, email); {
	case err == nil:
		return nil, errs.ErrDuplicateAccount
	case !errors.Is(err, errs.ErrNotFound):
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &store.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, errs.ErrDuplicateAccount) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user registered", zap.String("userId", u.ID))
	return s.issue(u)
}

// Verify returns the identity in a token; logout is client-side so there is no revocation.
func (s *Service) Verify(token string) (*Claims, error) {
	return s.tokens.ValidateJWT(token)
}

func (s *Service) issue(u *store.User) (*Session, error) {
	token, exp, err := s.tokens.GenerateJWT(u.ID, u.Email, u.Name)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token, ExpiresAt: exp}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
