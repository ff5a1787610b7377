package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gwi.com/rag-assistant/internal/errs"
	"gwi.com/rag-assistant/internal/vectorindex"
)

// NumRelevantChunks is how many nearest neighbours a query asks the index for.
const NumRelevantChunks = 5

// Snippet is a piece of retrieved context. Rank is 1-based in index order.
type Snippet struct {
	Text string
	Rank int
}

// Retriever finds context for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Snippet, error)
}

type RAGService struct {
	embedder Embedder
	index    vectorindex.Index
	topK     int
	log      *zap.Logger
}

var _ Retriever = (*RAGService)(nil)

func NewRAGService(embedder Embedder, index vectorindex.Index, log *zap.Logger) *RAGService {
	return &RAGService{embedder: embedder, index: index, topK: NumRelevantChunks, log: log}
}

// Retrieve embeds the query and returns the text of the top matches in the order the
// index ranked them. No matches is not an error.
func (s *RAGService) Retrieve(ctx context.Context, query string) ([]Snippet, error) {
	queryEmbedding, err := s.embedder.GetEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get query embedding: %w", err)
	}

	matches, err := s.index.Query(ctx, queryEmbedding, s.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrVectorIndex, err)
	}

	snippets := make([]Snippet, 0, len(matches))
	for _, m := range matches {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		snippets = append(snippets, Snippet{Text: m.Text, Rank: len(snippets) + 1})
	}

	s.log.Debug("retrieved context",
		zap.Int("matches", len(matches)),
		zap.Int("snippets", len(snippets)),
	)
	return snippets, nil
}
