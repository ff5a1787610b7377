package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"gwi.com/rag-assistant/internal/cache"
)

// CachedEmbedder memoizes embeddings. Cache failures are logged and treated as misses.
type CachedEmbedder struct {
	next  Embedder
	cache cache.Cache
	model string
	ttl   time.Duration
	log   *zap.Logger
}

var _ Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(next Embedder, c cache.Cache, model string, ttl time.Duration, log *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{next: next, cache: c, model: model, ttl: ttl, log: log}
}

func (e *CachedEmbedder) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)

	if raw, err := e.cache.Get(ctx, key); err == nil {
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err == nil && len(vec) > 0 {
			return vec, nil
		}
		e.log.Warn("discarding undecodable cached embedding", zap.String("key", key))
	} else if !errors.Is(err, cache.ErrMiss) {
		e.log.Warn("embedding cache read failed", zap.Error(err))
	}

	vec, err := e.next.GetEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(vec); err == nil {
		if err := e.cache.Set(ctx, key, string(raw), e.ttl); err != nil {
			e.log.Warn("embedding cache write failed", zap.Error(err))
		}
	}
	return vec, nil
}

func (e *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + e.model + ":" + hex.EncodeToString(sum[:])
}
