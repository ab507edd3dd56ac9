// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/mimir/internal/aggregator"
	"github.com/starford/mimir/internal/api"
	"github.com/starford/mimir/internal/auth"
	"github.com/starford/mimir/internal/ingest"
	"github.com/starford/mimir/internal/llama"
	"github.com/starford/mimir/internal/mcpserver"
	"github.com/starford/mimir/internal/notify"
	"github.com/starford/mimir/internal/query"
	"github.com/starford/mimir/internal/reports"
	"github.com/starford/mimir/internal/sse"
	"github.com/starford/mimir/internal/store"
	"github.com/starford/mimir/internal/vectorindex"
	"github.com/starford/mimir/internal/websearch"
)

// components bundles the wired service graph shared by all commands.
type components struct {
	store    *store.Store
	indexes  *vectorindex.Manager
	embedder *llama.Embedder
	mailer   *notify.Mailer
	ingest   *ingest.Pipeline
	queries  *query.Pipeline
	reports  *reports.Service
	auth     *auth.Service
}

func newLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func buildComponents(cfg *Config, logger *slog.Logger) (*components, error) {
	for _, dir := range []string{cfg.Storage.UploadsDir, cfg.Storage.InboxDir, cfg.Storage.StagingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	st, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, err
	}

	indexes, err := vectorindex.NewManager(cfg.Storage.IndexDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	embedder := llama.NewEmbedder(cfg.Llama.EmbeddingURL, cfg.Llama.EmbeddingModel, 0, logger)
	generator := llama.NewGenerator(cfg.Llama.GenerationURL, cfg.Llama.GenerationModel, 0, logger)
	reranker := llama.NewReranker(cfg.Llama.RerankURL, cfg.Llama.RerankModel, 0, logger)
	web := websearch.New(cfg.Search.Endpoint, cfg.Search.Key, generator, logger)
	mailer := notify.NewMailer(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username,
		cfg.Mail.Password, cfg.Mail.From, cfg.Mail.AdminEmail, logger)

	pipeline := ingest.NewPipeline(st, indexes, embedder, logger)

	return &components{
		store:    st,
		indexes:  indexes,
		embedder: embedder,
		mailer:   mailer,
		ingest:   pipeline,
		queries:  query.NewPipeline(indexes, embedder, reranker, generator, web, logger),
		reports:  reports.NewService(st, logger),
		auth:     auth.NewService(st, cfg.Auth.JWTSecret),
	}, nil
}

// Run starts the HTTP server, the inbox watcher, and the feed aggregator,
// and blocks until shutdown.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(cfg)
	logger.Info("configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("index_dir", cfg.Storage.IndexDir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	broker := sse.NewBroker()
	defer broker.Close()

	handler := api.NewHandler(c.auth, c.store, c.ingest, c.queries, c.reports,
		broker, cfg.Storage.UploadsDir, logger)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: api.NewRouter(handler, c.auth),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.ingest.Watch(gCtx, cfg.Storage.InboxDir, cfg.Storage.UploadsDir, logger,
			func(userID int64, filePath string) {
				broker.Publish(userID, sse.Event{
					Type: sse.EventDocumentIngested,
					Data: map[string]any{"file_path": filePath},
				})
			})
	})

	if cfg.Aggregator.Enabled && !app.noAggregator {
		agg := aggregator.New(c.store, c.ingest, c.mailer, broker,
			cfg.Storage.StagingDir, cfg.Aggregator.Interval(), logger)
		g.Go(func() error {
			return agg.Run(gCtx)
		})
	}

	g.Go(func() error {
		logger.Info("starting HTTP server", slog.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")
	return nil
}

// RunAggregate performs a single feed aggregation cycle and exits.
func RunAggregate(ctx context.Context, cfg *Config) error {
	logger := newLogger(cfg)
	c, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	agg := aggregator.New(c.store, c.ingest, c.mailer, nil,
		cfg.Storage.StagingDir, cfg.Aggregator.Interval(), logger)
	return agg.RunOnce(ctx)
}

// RunRebuild re-embeds every stored document for one user into a fresh
// vector index.
func RunRebuild(ctx context.Context, cfg *Config, userID int64) error {
	logger := newLogger(cfg)
	c, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	return c.ingest.Rebuild(ctx, userID)
}

// RunMCP serves the MCP tools over stdio until the client disconnects.
func RunMCP(_ context.Context, cfg *Config) error {
	logger := newLogger(cfg)
	c, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	return mcpserver.New(c.store, c.queries, c.ingest).ServeStdio()
}
