package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gwi.com/rag-assistant/internal/errs"
	"gwi.com/rag-assistant/internal/store"
)

// Reply is the outcome of one chat exchange.
type Reply struct {
	Content string
	History []store.Turn
}

type ChatService struct {
	conversations store.ConversationStore
	retriever     Retriever
	completer     Completer
	historyLimit  int
	log           *zap.Logger
}

func NewChatService(conversations store.ConversationStore, retriever Retriever, completer Completer, historyLimit int, log *zap.Logger) *ChatService {
	return &ChatService{
		conversations: conversations,
		retriever:     retriever,
		completer:     completer,
		historyLimit:  historyLimit,
		log:           log,
	}
}

// SendMessage runs one exchange: load history, retrieve context, assemble the prompt,
// call the model, then persist the user and model turns together. Retrieval failures
// degrade to a plain chat; a completion failure persists nothing.
func (s *ChatService) SendMessage(ctx context.Context, userID, message string) (*Reply, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: userId and message are required", errs.ErrInvalidRequest)
	}
	log := s.log.With(zap.String("userId", userID))

	prior, err := s.loadTurns(ctx, userID)
	if err != nil {
		return nil, err
	}

	var contextTexts []string
	snippets, err := s.retriever.Retrieve(ctx, message)
	if err != nil {
		// Don't fail the whole request if context retrieval fails, just proceed without context.
		log.Warn("retrieval failed, answering without context", zap.Error(err))
	}
	for _, sn := range snippets {
		contextTexts = append(contextTexts, sn.Text)
	}

	prompt := AssemblePrompt(message, contextTexts, prior, s.historyLimit)

	userTurn := store.NewTurn(store.RoleUser, message)
	content, err := s.completer.Complete(ctx, prompt.Text, prompt.History)
	if err != nil {
		log.Error("completion failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", errs.ErrRequestFailed, err)
	}
	modelTurn := store.NewTurn(store.RoleModel, content)

	if err := s.conversations.AppendTurns(ctx, userID, userTurn, modelTurn); err != nil {
		log.Error("failed to persist turns", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", errs.ErrPersistence, err)
	}

	log.Info("chat exchange completed",
		zap.Int("contextSnippets", len(contextTexts)),
		zap.Int("historyTurns", len(prompt.History)),
	)

	history := make([]store.Turn, 0, len(prior)+2)
	history = append(history, prior...)
	history = append(history, userTurn, modelTurn)
	return &Reply{Content: content, History: history}, nil
}

// History returns the user's turns, empty when no conversation exists yet.
func (s *ChatService) History(ctx context.Context, userID string) ([]store.Turn, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", errs.ErrInvalidRequest)
	}
	return s.loadTurns(ctx, userID)
}

func (s *ChatService) loadTurns(ctx context.Context, userID string) ([]store.Turn, error) {
	conv, err := s.conversations.GetConversation(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load conversation: %w", errs.ErrPersistence, err)
	}
	if conv == nil {
		return []store.Turn{}, nil
	}
	return conv.Turns, nil
}
