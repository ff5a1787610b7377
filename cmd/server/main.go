package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gwi.com/rag-assistant/internal/api"
	"gwi.com/rag-assistant/internal/auth"
	"gwi.com/rag-assistant/internal/config"
	"gwi.com/rag-assistant/internal/core"
	"gwi.com/rag-assistant/internal/ingest"
	"gwi.com/rag-assistant/internal/logging"
)

// app carries what every command needs once flags and environment are parsed.
type app struct {
	cfg *config.Config
	log *zap.Logger
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCommand builds the CLI. Configuration is loaded for every command; each command
// validates only the settings it uses.
func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "server",
		Short:         "Retrieval-augmented chat assistant backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log, err := logging.New(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			a.cfg, a.log = cfg, log
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error { return a.serve(cmd.Context()) },
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE:  func(cmd *cobra.Command, _ []string) error { return a.serve(cmd.Context()) },
		},
		a.ingestCommand(),
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or upgrade the database schema and exit",
			RunE:  func(cmd *cobra.Command, _ []string) error { return a.migrate(cmd.Context()) },
		},
	)
	return root
}

func (a *app) serve(ctx context.Context) error {
	defer func() { _ = a.log.Sync() }()
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	a.log.Info("service starting", zap.String("logLevel", a.cfg.LogLevel))

	dbStore, err := openStore(ctx, a.cfg, a.log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeWithLog(a.log, "store", dbStore.Close)

	llmService, err := newLLMService(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer llmService.Close()

	index, closeIndex, err := openIndex(a.cfg, a.log)
	if err != nil {
		return fmt.Errorf("failed to open vector index: %w", err)
	}
	defer closeIndex()

	embedder, closeCache := cachedEmbedder(ctx, a.cfg, llmService, a.log)
	defer closeCache()

	ragService := core.NewRAGService(embedder, index, a.log.Named("rag"))
	chatService := core.NewChatService(dbStore, ragService, llmService, a.cfg.HistoryLimit, a.log.Named("chat"))
	authService := auth.NewService(dbStore, auth.NewTokenIssuer(a.cfg.JWTSecret), a.log.Named("auth"))

	var avatarGen api.AvatarGenerator
	if a.cfg.AvatarEnabled() {
		avatarGen = newAvatarClient(a.cfg, a.log.Named("avatar"))
	} else {
		a.log.Info("avatar generation disabled, DID_API_KEY or DID_SOURCE_URL not set")
	}

	apiHandler := api.NewAPIHandler(chatService, authService, avatarGen, a.log.Named("api"))
	router := api.NewRouter(apiHandler, a.log.Named("http"))

	serverAddr := fmt.Sprintf(":%s", a.cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: a.cfg.AvatarTimeout + 30*time.Second, // avatar polling is the slowest route
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
	case sig := <-quit:
		a.log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.log.Info("server exiting gracefully")
	return nil
}

func (a *app) ingestCommand() *cobra.Command {
	var (
		file   string
		prefix string
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and index a knowledge document, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer func() { _ = a.log.Sync() }()
			ctx := cmd.Context()
			if err := a.cfg.ValidateIngest(); err != nil {
				return err
			}

			text, err := ingest.LoadText(file)
			if err != nil {
				return err
			}

			llmService, err := newLLMService(ctx, a.cfg, a.log)
			if err != nil {
				return err
			}
			defer llmService.Close()

			index, closeIndex, err := openIndex(a.cfg, a.log)
			if err != nil {
				return fmt.Errorf("failed to open vector index: %w", err)
			}
			defer closeIndex()

			embedder, closeCache := cachedEmbedder(ctx, a.cfg, llmService, a.log)
			defer closeCache()

			ingester := ingest.NewIngester(embedder, index, a.cfg.IngestRPS, a.log.Named("ingest"))
			n, err := ingester.Ingest(ctx, text, prefix)
			if err != nil {
				return fmt.Errorf("data ingestion failed: %w", err)
			}
			a.log.Info("data ingestion complete", zap.Int("chunks", n), zap.String("file", file))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "data.md", "path of the document to ingest (text or PDF)")
	cmd.Flags().StringVar(&prefix, "prefix", "faq", "id prefix for the indexed chunks")
	return cmd
}

func (a *app) migrate(ctx context.Context) error {
	defer func() { _ = a.log.Sync() }()
	dbStore, err := openStore(ctx, a.cfg, a.log)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	a.log.Info("database schema is up to date")
	return dbStore.Close()
}
