package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"gwi.com/rag-assistant/internal/auth"
	"gwi.com/rag-assistant/internal/core"
	"gwi.com/rag-assistant/internal/errs"
	"gwi.com/rag-assistant/internal/store"
)

// genericChatError is the only failure detail a chat caller ever sees.
const genericChatError = "Sorry, I encountered an error. Please try again."

// Chatter runs chat exchanges and reads history.
type Chatter interface {
	SendMessage(ctx context.Context, userID, message string) (*core.Reply, error)
	History(ctx context.Context, userID string) ([]store.Turn, error)
}

// Authenticator handles accounts and session tokens.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Signup(ctx context.Context, email, password, name string) (*auth.Session, error)
	Verify(token string) (*auth.Claims, error)
}

// AvatarGenerator renders a script into a video URL.
type AvatarGenerator interface {
	Generate(ctx context.Context, script string) (string, error)
}

type APIHandler struct {
	chat   Chatter
	auth   Authenticator
	avatar AvatarGenerator
	log    *zap.Logger
}

// NewAPIHandler wires the handlers. avatar may be nil, in which case
// /generate_avatar answers 503.
func NewAPIHandler(chat Chatter, authn Authenticator, avatar AvatarGenerator, log *zap.Logger) *APIHandler {
	return &APIHandler{chat: chat, auth: authn, avatar: avatar, log: log}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type sessionResponse struct {
	User  *store.User `json:"user"`
	Token string      `json:"token"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, "Email and password are required")
		case errors.Is(err, errs.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
		default:
			h.log.Error("login failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: sess.User, Token: sess.Token})
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess, err := h.auth.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrDuplicateAccount):
			writeError(w, http.StatusBadRequest, "User already exists")
		case errors.Is(err, errs.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, errorDetail(err))
		default:
			h.log.Error("signup failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: sess.User, Token: sess.Token})
}

// LogoutHandler acknowledges a logout. Tokens are stateless so the client discards its own.
func (h *APIHandler) LogoutHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *APIHandler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}
	user := &store.User{ID: claims.UserID, Email: claims.Email, Name: claims.Name}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

type chatRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type chatResponse struct {
	Content     string       `json:"content"`
	ChatHistory []store.Turn `json:"chatHistory"`
}

func (h *APIHandler) PostChatHandler(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	userID, ok := h.resolveUser(w, r, req.UserID)
	if !ok {
		return
	}
	if userID == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "User ID and message are required")
		return
	}

	reply, err := h.chat.SendMessage(r.Context(), userID, req.Message)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, "User ID and message are required")
			return
		}
		h.log.Error("chat request failed", zap.String("userId", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, genericChatError)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Content: reply.Content, ChatHistory: reply.History})
}

func (h *APIHandler) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r, r.URL.Query().Get("userId"))
	if !ok {
		return
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "User ID is required")
		return
	}

	history, err := h.chat.History(r.Context(), userID)
	if err != nil {
		h.log.Error("failed to load chat history", zap.String("userId", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch chat history")
		return
	}
	if history == nil {
		history = []store.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string][]store.Turn{"chatHistory": history})
}

type avatarRequest struct {
	Message string `json:"message"`
}

func (h *APIHandler) GenerateAvatarHandler(w http.ResponseWriter, r *http.Request) {
	if h.avatar == nil {
		writeError(w, http.StatusServiceUnavailable, "Avatar generation is not configured")
		return
	}
	var req avatarRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	videoURL, err := h.avatar.Generate(r.Context(), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, "Message is required")
		case errors.Is(err, errs.ErrAvatarTimeout):
			writeError(w, http.StatusGatewayTimeout, "Timed out waiting for avatar processing")
		default:
			h.log.Error("avatar generation failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to generate avatar video")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"videoUrl": videoURL})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// resolveUser reconciles the requested user with the session token, if one was sent.
// It writes the error response itself and reports false when the request must stop.
func (h *APIHandler) resolveUser(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		return requested, true
	}
	if requested == "" {
		return claims.UserID, true
	}
	if requested != claims.UserID {
		writeError(w, http.StatusForbidden, "Forbidden")
		return "", false
	}
	return requested, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorDetail strips the sentinel prefix from a validation error.
func errorDetail(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	return msg
}
