package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gwi.com/rag-assistant/internal/avatar"
	"gwi.com/rag-assistant/internal/cache"
	"gwi.com/rag-assistant/internal/config"
	"gwi.com/rag-assistant/internal/core"
	"gwi.com/rag-assistant/internal/store"
	"gwi.com/rag-assistant/internal/store/mongodb"
	"gwi.com/rag-assistant/internal/store/postgres"
	"gwi.com/rag-assistant/internal/store/sqlite"
	"gwi.com/rag-assistant/internal/vectorindex"
)

// openStore picks the backend from the DATABASE_URL scheme; anything else is a SQLite path.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	dsn := cfg.DatabaseURL
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		if err := postgres.Migrate(ctx, dsn); err != nil {
			return nil, err
		}
		db, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		log.Info("using postgres store")
		return postgres.NewStore(db), nil

	case strings.HasPrefix(dsn, "mongodb://"), strings.HasPrefix(dsn, "mongodb+srv://"):
		s, err := mongodb.Open(ctx, dsn, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		log.Info("using mongodb store", zap.String("database", cfg.MongoDatabase))
		return s, nil

	default:
		s, err := sqlite.NewSQLiteStore(dsn)
		if err != nil {
			return nil, err
		}
		log.Info("using sqlite store", zap.String("path", dsn))
		return s, nil
	}
}

// openIndex selects the vector index. Chromem persists on every write; only the
// Pinecone connection needs closing.
func openIndex(cfg *config.Config, log *zap.Logger) (vectorindex.Index, func(), error) {
	noop := func() {}
	switch cfg.VectorIndex {
	case config.VectorIndexPinecone:
		idx, err := vectorindex.NewPinecone(cfg.PineconeIndexHost, cfg.PineconeAPIKey)
		if err != nil {
			return nil, nil, err
		}
		return idx, func() { closeWithLog(log, "pinecone", idx.Close) }, nil
	case config.VectorIndexMemory:
		return vectorindex.NewMemory(), noop, nil
	default:
		idx, err := vectorindex.OpenChromem(cfg.VectorDir, cfg.VectorCollection)
		if err != nil {
			return nil, nil, err
		}
		return idx, noop, nil
	}
}

func newLLMService(ctx context.Context, cfg *config.Config, log *zap.Logger) (*core.LLMService, error) {
	s, err := core.NewLLMService(ctx, core.LLMOptions{
		APIKey:            cfg.GeminiAPIKey,
		ChatModel:         cfg.ChatModel,
		EmbeddingModel:    cfg.EmbeddingModel,
		EmbedTimeout:      cfg.EmbedTimeout,
		CompletionTimeout: cfg.CompletionTimeout,
	}, log.Named("llm"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
	}
	return s, nil
}

// cachedEmbedder fronts the model with Redis when REDIS_URL is set. An unreachable
// Redis is logged and the service runs uncached.
func cachedEmbedder(ctx context.Context, cfg *config.Config, llm *core.LLMService, log *zap.Logger) (core.Embedder, func()) {
	if cfg.RedisURL == "" {
		return llm, func() {}
	}
	rc, err := cache.NewRedisCache(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn("embedding cache disabled", zap.Error(err))
		return llm, func() {}
	}
	log.Info("embedding cache enabled", zap.Duration("ttl", cfg.EmbedCacheTTL))
	e := core.NewCachedEmbedder(llm, rc, llm.EmbeddingModel(), cfg.EmbedCacheTTL, log.Named("embed-cache"))
	return e, func() { closeWithLog(log, "redis", rc.Close) }
}

func newAvatarClient(cfg *config.Config, log *zap.Logger) *avatar.Client {
	return avatar.NewClient(avatar.Options{
		APIKey:      cfg.DIDAPIKey,
		BaseURL:     cfg.DIDBaseURL,
		SourceURL:   cfg.DIDSourceURL,
		Timeout:     cfg.AvatarTimeout,
		MaxAttempts: cfg.AvatarMaxAttempts,
	}, log)
}

func closeWithLog(log *zap.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Warn("close failed", zap.String("resource", name), zap.Error(err))
	}
}
