// Package main is the entry point for the PR notification API server.
//
// It loads configuration, connects the document store and resolver cache,
// assembles the notification pipeline (identity and reference-data resolvers,
// template renderer, content post-processor, idempotency guard, delivery
// orchestrator), and serves the trigger surface over HTTP.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

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

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/go-redis/redis/v8"

	"prtrack/internal/api"
	"prtrack/internal/cache"
	"prtrack/internal/config"
	"prtrack/internal/db"
	"prtrack/internal/external"
	"prtrack/internal/notify"
	"prtrack/internal/resolve"
	"prtrack/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error, and Warn directly but With returns
// *slog.Logger, not types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("prtrack notifier starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting document store: %w", err)
	}
	defer pool.Close()

	notifier, err := buildNotifier(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}

	srv, err := api.NewServer(cfg, notifier, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if cfg.Server.AsyncDispatch {
		publisher, err := newQueuePublisher(ctx, cfg, logger)
		if err != nil {
			return err
		}
		srv.Publisher = publisher
	}

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// buildNotifier assembles the full notification pipeline from configuration.
func buildNotifier(ctx context.Context, cfg *config.Config, pool db.DBTX, logger *slog.Logger) (*notify.Notifier, error) {
	typedLogger := &slogAdapter{logger: logger}

	resolverCache := newResolverCache(cfg.Cache, logger)

	var directory external.AuthDirectory
	if entries := cfg.Identity.Directory(); len(entries) > 0 {
		directory = external.NewStubAuthDirectory(logger, entries)
	}

	identity := resolve.NewIdentityResolver(
		db.NewUserRepo(pool),
		directory,
		resolverCache,
		resolve.IdentityResolverOptions{
			Exceptions: cfg.Identity.Exceptions(),
			TTL:        cfg.Cache.TTL,
			ScanWindow: cfg.Identity.AliasScanWindow,
		},
		typedLogger,
	)
	refdata := resolve.NewRefDataResolver(
		db.NewReferenceDataRepo(pool),
		resolverCache,
		cfg.Cache.TTL,
		nil,
		typedLogger,
	)

	renderer, err := notify.NewRenderer(typedLogger)
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	provider, err := newMailProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	metrics, err := newDeliveryMetrics(ctx, cfg, typedLogger)
	if err != nil {
		return nil, err
	}

	logRepo := db.NewNotificationLogRepo(pool, types.RealClock{})

	return notify.NewNotifier(notify.NotifierDeps{
		PRs:           db.NewPurchaseRequestRepo(pool),
		Contexts:      notify.NewContextBuilder(identity, refdata, cfg.Server.BaseURL),
		Renderer:      renderer,
		PostProcessor: notify.NewPostProcessor(refdata, typedLogger),
		Guard:         notify.NewGuard(logRepo, typedLogger),
		Dispatcher: notify.NewDispatcher(
			provider,
			types.SenderIdentity{Name: cfg.Email.FromName, Address: cfg.Email.FromAddress},
			cfg.Email.SendTimeout,
			metrics,
			typedLogger,
		),
		Log:                logRepo,
		ProcurementAddress: cfg.Email.ProcurementAddress,
		Metrics:            metrics,
		Logger:             typedLogger,
	}), nil
}

// newDeliveryMetrics selects the telemetry backend. Local runs log metric
// lines; deployed environments publish to CloudWatch.
func newDeliveryMetrics(ctx context.Context, cfg *config.Config, logger types.Logger) (notify.DeliveryMetrics, error) {
	if cfg.Environment == "local" {
		return notify.NewLogMetrics(logger), nil
	}

	awsCfg, err := external.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return notify.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), logger), nil
}

// newResolverCache selects Redis when configured, falling back to a
// process-local in-memory store.
func newResolverCache(cfg config.CacheConfig, logger *slog.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, using in-memory resolver cache")
		return cache.NewMemoryCache()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword.Unmask(),
		DB:       cfg.RedisDB,
	})
	logger.Info("resolver cache using Redis", "addr", cfg.RedisAddr)
	return cache.NewRedisCache(client, "prtrack:")
}

// newQueuePublisher builds the async-dispatch publisher. Local mode records
// messages in memory instead of reaching SQS.
func newQueuePublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (external.QueuePublisher, error) {
	if cfg.Environment == "local" {
		logger.Warn("async dispatch using stub queue publisher")
		return external.NewStubQueuePublisher(logger), nil
	}
	if cfg.AWS.NotificationQueue == "" {
		return nil, fmt.Errorf("ASYNC_DISPATCH requires SQS_NOTIFICATIONS to be set")
	}

	awsCfg, err := external.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return external.NewSQSPublisher(awsCfg, cfg.AWS.NotificationQueue, logger), nil
}

// newMailProvider selects the configured mail provider. SES is wrapped in a
// circuit breaker so a degraded provider sheds load instead of queueing it.
func newMailProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (external.MailProvider, error) {
	if cfg.Email.Provider == "stub" || cfg.Environment == "local" {
		logger.Warn("using stub mail provider, no email will be delivered")
		return external.NewStubMailProvider(logger), nil
	}

	awsCfg, err := external.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	ses := external.NewSESClient(awsCfg, external.SESClientConfig{Logger: logger})
	return external.NewBreakerMailProvider("ses", ses), nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *api.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
