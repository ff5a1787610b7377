// Package ingest loads a knowledge document into the vector index.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gwi.com/rag-assistant/internal/core"
	"gwi.com/rag-assistant/internal/vectorindex"
)

// MaxChunkRunes bounds the size of a single indexed chunk.
const MaxChunkRunes = 500

// Chunk splits text line by line into pieces of at most MaxChunkRunes runes. Pieces are
// trimmed and empty ones are dropped.
func Chunk(text string) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > 0 {
			cut := len(line)
			if utf8.RuneCountInString(line) > MaxChunkRunes {
				cut = byteOffset(line, MaxChunkRunes)
			}
			if piece := strings.TrimSpace(line[:cut]); piece != "" {
				chunks = append(chunks, piece)
			}
			line = line[cut:]
		}
	}
	return chunks
}

// byteOffset returns the byte index just past the first n runes of s.
func byteOffset(s string, n int) int {
	i := 0
	for range n {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}

type Ingester struct {
	embedder core.Embedder
	index    vectorindex.Index
	limiter  *rate.Limiter
	log      *zap.Logger
}

// NewIngester paces embedding calls at rps per second; rps <= 0 disables pacing.
func NewIngester(embedder core.Embedder, index vectorindex.Index, rps float64, log *zap.Logger) *Ingester {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Ingester{
		embedder: embedder,
		index:    index,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log,
	}
}

// Ingest chunks text, embeds every chunk and upserts it as "<prefix>-<i>". A chunk that
// fails to embed or upsert is logged and skipped. It returns how many chunks were stored.
func (in *Ingester) Ingest(ctx context.Context, text, prefix string) (int, error) {
	if prefix == "" {
		prefix = "faq"
	}
	chunks := Chunk(text)
	in.log.Info("ingesting document", zap.Int("chunks", len(chunks)), zap.String("prefix", prefix))

	stored := 0
	for i, chunk := range chunks {
		if err := in.limiter.Wait(ctx); err != nil {
			return stored, fmt.Errorf("ingest interrupted after %d chunks: %w", stored, err)
		}

		id := fmt.Sprintf("%s-%d", prefix, i)
		vec, err := in.embedder.GetEmbedding(ctx, chunk)
		if err != nil {
			in.log.Warn("skipping chunk, embedding failed", zap.String("id", id), zap.Error(err))
			continue
		}
		rec := vectorindex.Record{ID: id, Values: vec, Text: chunk}
		if err := in.index.Upsert(ctx, []vectorindex.Record{rec}); err != nil {
			in.log.Warn("skipping chunk, upsert failed", zap.String("id", id), zap.Error(err))
			continue
		}
		stored++
		in.log.Debug("chunk stored", zap.String("id", id))
	}

	in.log.Info("ingestion finished", zap.Int("stored", stored), zap.Int("skipped", len(chunks)-stored))
	return stored, nil
}
