package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"gwi.com/rag-assistant/internal/errs"
	"gwi.com/rag-assistant/internal/store"
)

const (
	defaultChatModelName      = "gemini-2.0-flash"
	defaultEmbeddingModelName = "embedding-001"

	chatSystemInstruction = "You are a helpful assistant. When context is provided with a question, " +
		"use it to answer and say so plainly if it does not contain the answer."
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Completer sends a prompt, with prior turns as conversational context, to a language model.
type Completer interface {
	Complete(ctx context.Context, prompt string, history []store.Turn) (string, error)
}

// LLMOptions configures the Gemini gateway.
type LLMOptions struct {
	APIKey            string
	ChatModel         string
	EmbeddingModel    string
	EmbedTimeout      time.Duration
	CompletionTimeout time.Duration
}

// contentEmbedder and messageSender are the slices of the genai models the service calls.
type contentEmbedder interface {
	EmbedContent(ctx context.Context, parts ...genai.Part) (*genai.EmbedContentResponse, error)
}

type messageSender interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type LLMService struct {
	client            *genai.Client
	newEmbedder       func(model string) contentEmbedder
	newChat           func(model, instruction string, history []*genai.Content) messageSender
	chatModel         string
	embeddingModel    string
	embedTimeout      time.Duration
	completionTimeout time.Duration
	log               *zap.Logger
}

var (
	_ Embedder  = (*LLMService)(nil)
	_ Completer = (*LLMService)(nil)
)

func NewLLMService(ctx context.Context, opts LLMOptions, log *zap.Logger) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	s := &LLMService{
		client:            client,
		chatModel:         opts.ChatModel,
		embeddingModel:    opts.EmbeddingModel,
		embedTimeout:      opts.EmbedTimeout,
		completionTimeout: opts.CompletionTimeout,
		log:               log,
	}
	if s.chatModel == "" {
		s.chatModel = defaultChatModelName
	}
	if s.embeddingModel == "" {
		s.embeddingModel = defaultEmbeddingModelName
	}
	s.newEmbedder = func(model string) contentEmbedder { return client.EmbeddingModel(model) }
	s.newChat = func(model, instruction string, history []*genai.Content) messageSender {
		m := client.GenerativeModel(model)
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(instruction)}}
		chatSession := m.StartChat()
		chatSession.History = history
		return chatSession
	}
	return s, nil
}

// EmbeddingModel names the model vectors come from; cache keys include it.
func (s *LLMService) EmbeddingModel() string { return s.embeddingModel }

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.log.Warn("error closing GenAI client", zap.Error(err))
		} else {
			s.log.Debug("GenAI client closed")
		}
	}
}

func (s *LLMService) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, s.embedTimeout)
	defer cancel()

	res, err := s.newEmbedder(s.embeddingModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("%w: gemini embedding request failed: %w", errs.ErrEmbedding, err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: no embedding data received from gemini", errs.ErrEmbedding)
	}
	return res.Embedding.Values, nil
}

func (s *LLMService) Complete(ctx context.Context, prompt string, history []store.Turn) (string, error) {
	ctx, cancel := withTimeout(ctx, s.completionTimeout)
	defer cancel()

	contents, system := toGenaiHistory(history)
	chatSession := s.newChat(s.chatModel, joinInstructions(chatSystemInstruction, system), contents)

	resp, err := chatSession.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: gemini chat SendMessage failed: %w", errs.ErrCompletion, err)
	}
	return responseText(resp)
}

// toGenaiHistory maps stored turns to Gemini contents. Gemini chat history only accepts
// user and model roles, so system turns are returned separately for the instruction.
func toGenaiHistory(turns []store.Turn) ([]*genai.Content, []string) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, t := range turns {
		switch t.Role {
		case store.RoleSystem:
			system = append(system, t.Content)
		case store.RoleUser, store.RoleModel:
			contents = append(contents, &genai.Content{
				Role:  t.Role.String(),
				Parts: []genai.Part{genai.Text(t.Content)},
			})
		}
	}
	return contents, system
}

func joinInstructions(base string, extra []string) string {
	if len(extra) == 0 {
		return base
	}
	return base + "\n\n" + strings.Join(extra, "\n")
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini response had no candidates", errs.ErrCompletion)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	if responseText.Len() == 0 {
		return "", fmt.Errorf("%w: gemini response had no text parts", errs.ErrCompletion)
	}
	return responseText.String(), nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
