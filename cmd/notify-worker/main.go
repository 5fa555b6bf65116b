// Package main is the entrypoint for the notify worker.
//
// The worker consumes trigger messages from the notification SQS queue and
// runs them through the same pipeline as the HTTP surface. Each invocation
// receives a batch of SQS messages; messages that fail with a retryable error
// are reported as partial batch failures so SQS redrives only those.
//
// In local mode (APP_ENV=local) the worker reads a JSON SQS event from stdin
// instead of starting the Lambda runtime:
//
//	echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | go run ./cmd/notify-worker
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/go-redis/redis/v8"

	"prtrack/internal/cache"
	"prtrack/internal/config"
	"prtrack/internal/db"
	"prtrack/internal/external"
	"prtrack/internal/notify"
	"prtrack/internal/resolve"
	"prtrack/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
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

// triggerProcessor is the pipeline surface the worker drives.
type triggerProcessor interface {
	Process(ctx context.Context, req types.TriggerRequest) (*types.TriggerResult, error)
}

// Handler holds the dependencies for the worker handler.
type Handler struct {
	notifier triggerProcessor
	logger   types.Logger
}

// Handle processes an SQS event containing one or more trigger messages.
// Messages are processed independently; failures that SQS should retry are
// reported via batchItemFailures.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage handles a single SQS message through the full pipeline.
// A nil return ACKs the message; permanent failures (malformed payloads,
// rejected triggers) are ACKed with an error log since a redrive cannot fix
// them.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var msg types.NotificationMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("failed to unmarshal trigger message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}

	logger := h.logger.With(
		"pr_id", msg.Notification.PRID,
		"transition", msg.Notification.TransitionKey(),
		"retry_count", msg.RetryCount,
		"trace_id", msg.TraceID,
	)

	result, err := h.notifier.Process(ctx, msg.TriggerRequest)
	if err != nil {
		if isPermanent(err) {
			logger.Error("trigger permanently rejected", "error", err.Error())
			return nil
		}
		return err
	}

	if result.Duplicate {
		logger.Info("duplicate trigger acknowledged")
		return nil
	}

	logger.Info("trigger processed",
		"delivered", result.Delivered,
		"failed", len(result.Failed),
	)
	return nil
}

// isPermanent reports whether a pipeline error cannot be fixed by a redrive.
// Validation failures, missing PRs, and duplicate conflicts are permanent;
// upstream and infrastructure errors are retryable.
func isPermanent(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.HTTPStatus() < 500
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("notify worker initializing")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect document store", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	notifier, err := buildNotifier(ctx, cfg, pool, logger)
	if err != nil {
		logger.Error("failed to assemble pipeline", "error", err)
		os.Exit(1)
	}

	handler := &Handler{notifier: notifier, logger: &slogAdapter{logger: logger}}

	logger.Info("notify worker initialized",
		"environment", cfg.Environment,
		"notification_queue", cfg.AWS.NotificationQueue,
	)

	if cfg.Environment == "local" {
		if err := runLocal(handler, logger); err != nil {
			logger.Error("local execution failed", "error", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(handler.Handle)
}

// runLocal reads one SQS event from stdin and processes it, for integration
// testing without the Lambda runtime.
func runLocal(handler *Handler, logger *slog.Logger) error {
	logger.Info("APP_ENV=local: reading SQS event from stdin")

	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	if len(payload) == 0 {
		return fmt.Errorf("no input received on stdin")
	}

	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		return fmt.Errorf("parsing stdin as SQS event: %w", err)
	}

	response, err := handler.Handle(context.Background(), sqsEvent)
	if err != nil {
		return err
	}
	if len(response.BatchItemFailures) > 0 {
		respJSON, _ := json.MarshalIndent(response, "", "  ")
		fmt.Fprintln(os.Stderr, string(respJSON))
	}

	logger.Info("execution completed",
		"records_processed", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
	return nil
}

// buildNotifier assembles the notification pipeline from configuration. The
// worker shares the exact pipeline semantics of the HTTP surface.
func buildNotifier(ctx context.Context, cfg *config.Config, pool db.DBTX, logger *slog.Logger) (*notify.Notifier, error) {
	typedLogger := &slogAdapter{logger: logger}

	var resolverCache cache.Cache
	if cfg.Cache.RedisAddr == "" {
		resolverCache = cache.NewMemoryCache()
	} else {
		resolverCache = cache.NewRedisCache(redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword.Unmask(),
			DB:       cfg.Cache.RedisDB,
		}), "prtrack:")
	}

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

	var provider external.MailProvider
	if cfg.Email.Provider == "stub" || cfg.Environment == "local" {
		logger.Warn("using stub mail provider, no email will be delivered")
		provider = external.NewStubMailProvider(logger)
	} else {
		awsCfg, err := external.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, fmt.Errorf("loading AWS configuration: %w", err)
		}
		provider = external.NewBreakerMailProvider("ses",
			external.NewSESClient(awsCfg, external.SESClientConfig{Logger: logger}))
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
