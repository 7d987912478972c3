// Package server provides the core application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/api"
	"github.com/JakeFAU/wikicrawler/internal/article"
	"github.com/JakeFAU/wikicrawler/internal/clock/system"
	"github.com/JakeFAU/wikicrawler/internal/config"
	"github.com/JakeFAU/wikicrawler/internal/crawler"
	"github.com/JakeFAU/wikicrawler/internal/fetcher/archive"
	collyfetcher "github.com/JakeFAU/wikicrawler/internal/fetcher/colly"
	"github.com/JakeFAU/wikicrawler/internal/fetcher/retry"
	"github.com/JakeFAU/wikicrawler/internal/hash/sha256"
	"github.com/JakeFAU/wikicrawler/internal/id/uuid"
	"github.com/JakeFAU/wikicrawler/internal/logging"
	"github.com/JakeFAU/wikicrawler/internal/metrics"
	"github.com/JakeFAU/wikicrawler/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/wikicrawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/wikicrawler/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/wikicrawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/wikicrawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/wikicrawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/wikicrawler/internal/storage/postgres"
	"github.com/JakeFAU/wikicrawler/internal/summary"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	service         *article.Service
	coordinator     *crawler.Coordinator
	pgStore         *pgstore.ArticleStore
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	storage         *storage.Client
	closeOnce       sync.Once
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	type sanitizedConfig struct {
		ServerPort int    `json:"server_port"`
		BaseURL    string `json:"base_url"`
		Database   string `json:"database"`
		Archive    string `json:"archive"`
		PubSub     string `json:"pubsub"`
		Summary    bool   `json:"summary"`
	}
	logger.Info("creating application", zap.Any("config", sanitizedConfig{
		ServerPort: cfg.Server.Port,
		BaseURL:    cfg.Crawler.BaseURL,
		Database:   cfg.Database.Backend,
		Archive:    cfg.Archive.Backend,
		PubSub:     cfg.PubSub.Backend,
		Summary:    cfg.Summary.Enabled,
	}))
	return &App{cfg: cfg, logger: logger}, nil
}

// Service exposes the article service for non-HTTP callers such as the CLI.
func (a *App) Service() *article.Service {
	return a.service
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP handler of the API server.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the HTTP server and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close releases clients and flushes the logger. Calls after the first
// return immediately.
func (a *App) Close(_ context.Context) error {
	a.closeOnce.Do(func() {
		if a.pubsubPublisher != nil {
			a.pubsubPublisher.Stop()
		}
		if a.pubsubClient != nil {
			if err := a.pubsubClient.Close(); err != nil {
				a.logger.Warn("pubsub client close failed", zap.Error(err))
			}
		}
		if a.storage != nil {
			if err := a.storage.Close(); err != nil {
				a.logger.Warn("gcs client close failed", zap.Error(err))
			}
		}
		if a.pgStore != nil {
			a.pgStore.Close()
		}
		a.logger.Info("shutdown complete")
		if err := a.logger.Sync(); err != nil {
			a.logger.Debug("logger sync failed", zap.Error(err))
		}
	})
	return nil
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	if err := app.build(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	a.logger.Info("building application dependencies")
	ids := uuid.New()
	clock := system.New()

	store, err := a.setupDatabase(ctx, ids, clock)
	if err != nil {
		return err
	}

	fetcher, err := a.setupFetcher(ctx, clock)
	if err != nil {
		return err
	}

	extractor := crawler.NewExtractor(crawler.ExtractorConfig{
		ContentSelector: a.cfg.Crawler.ContentSelector,
		MaxBodyChars:    a.cfg.Crawler.MaxBodyChars,
	})
	a.coordinator, err = crawler.NewCoordinator(fetcher, store, extractor, a.logger)
	if err != nil {
		return fmt.Errorf("coordinator init failed: %w", err)
	}

	summarizer, err := summary.New(summary.Config{
		Enabled:       a.cfg.Summary.Enabled,
		Provider:      a.cfg.Summary.Provider,
		BaseURL:       a.cfg.Summary.BaseURL,
		APIKey:        a.cfg.Summary.APIKey,
		Model:         a.cfg.Summary.Model,
		SystemPrompt:  a.cfg.Summary.SystemPrompt,
		MaxInputChars: a.cfg.Summary.MaxInputChars,
		MaxTokens:     a.cfg.Summary.MaxTokens,
		Timeout:       a.cfg.Summary.Timeout,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("summarizer init failed: %w", err)
	}
	if a.cfg.Summary.Enabled {
		a.logger.Info("summaries enabled", zap.String("provider", a.cfg.Summary.Provider))
	}

	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}

	a.service, err = article.NewService(a.coordinator, store, a.cfg.CrawlConfig(), article.Options{
		Summarizer: summarizer,
		Publisher:  publisher,
		Topic:      a.cfg.PubSub.TopicName,
		Clock:      clock,
		Logger:     a.logger,
	})
	if err != nil {
		return fmt.Errorf("article service init failed: %w", err)
	}

	a.apiServer = api.NewServer(a.service, a.readiness, *a.cfg, a.logger)
	return nil
}

func (a *App) readiness(ctx context.Context) error {
	if a.pgStore == nil {
		return nil
	}
	return a.pgStore.Ping(ctx)
}

func (a *App) setupDatabase(ctx context.Context, ids crawler.IDGenerator, clock crawler.Clock) (crawler.ArticleStore, error) {
	if a.cfg.Database.Backend != "postgres" {
		a.logger.Warn("using in-memory article store; data is lost on restart")
		return memorystorage.NewArticleStore(ids, clock), nil
	}
	store, err := pgstore.NewArticleStore(ctx, pgstore.Config{
		DSN:             a.cfg.Database.DSN,
		ArticlesTable:   a.cfg.Database.ArticlesTable,
		SummariesTable:  a.cfg.Database.SummariesTable,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	}, ids, clock)
	if err != nil {
		return nil, fmt.Errorf("article store init failed: %w", err)
	}
	a.pgStore = store
	if a.cfg.Database.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema failed: %w", err)
		}
	}
	a.logger.Info("postgres article store initialized",
		zap.String("articles_table", a.cfg.Database.ArticlesTable),
		zap.String("summaries_table", a.cfg.Database.SummariesTable),
	)
	return store, nil
}

// setupFetcher layers colly retrieval, raw page archiving and retries.
func (a *App) setupFetcher(ctx context.Context, clock crawler.Clock) (crawler.Fetcher, error) {
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.RateLimit.RPS,
		DefaultBurst: a.cfg.RateLimit.Burst,
	})
	a.logger.Info("rate limiter configured",
		zap.Float64("rps", a.cfg.RateLimit.RPS),
		zap.Int("burst", a.cfg.RateLimit.Burst),
	)

	base, err := collyfetcher.New(collyfetcher.Config{
		BaseURL:       a.cfg.Crawler.BaseURL,
		UserAgent:     a.cfg.Crawler.UserAgent,
		RespectRobots: a.cfg.Crawler.RespectRobots,
		Timeout:       a.cfg.Crawler.FetchTimeout,
		MaxBodyBytes:  a.cfg.Crawler.MaxBodyBytes,
	}, limiter, a.logger)
	if err != nil {
		return nil, fmt.Errorf("colly fetcher init failed: %w", err)
	}
	a.logger.Info("using colly fetcher",
		zap.String("base_url", a.cfg.Crawler.BaseURL),
		zap.String("user_agent", a.cfg.Crawler.UserAgent),
	)

	var fetcher crawler.Fetcher = base
	blobs, err := a.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	if blobs != nil {
		fetcher, err = archive.New(fetcher, blobs, sha256.New(), clock, archive.Config{Prefix: a.cfg.Archive.Prefix}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("archive fetcher init failed: %w", err)
		}
	}

	if a.cfg.HTTP.MaxRetries > 0 {
		policy := retry.NewExponentialPolicy(a.cfg.HTTP.MaxRetries+1, a.cfg.HTTP.BackoffBase, a.cfg.HTTP.BackoffMax)
		fetcher = retry.New(fetcher, policy, a.logger)
		a.logger.Info("fetch retries enabled", zap.Int("max_retries", a.cfg.HTTP.MaxRetries))
	}
	return fetcher, nil
}

func (a *App) setupArchive(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case "gcs":
		a.logger.Info("using GCS archive backend", zap.String("bucket", a.cfg.Archive.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case "local":
		a.logger.Info("using local archive backend", zap.String("path", a.cfg.Archive.LocalDir))
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	case "memory":
		a.logger.Info("using in-memory archive backend")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Debug("raw page archive disabled")
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	switch a.cfg.PubSub.Backend {
	case "gcp":
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.pubsubPublisher = client.Publisher(a.cfg.PubSub.TopicName)
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.TopicName),
		)
		return gcppublisher.New(a.pubsubPublisher), nil
	case "memory":
		a.logger.Info("using in-memory publisher")
		return memorypublisher.New(), nil
	default:
		a.logger.Debug("event publishing disabled")
		return nil, nil
	}
}
