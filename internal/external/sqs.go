package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"prtrack/internal/types"
)

// SQSAPI defines the subset of the SQS client used by SQSPublisher.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher implements QueuePublisher on AWS SQS. The API server uses it
// in async mode to hand triggers to the notify worker instead of processing
// them inline.
type SQSPublisher struct {
	api      SQSAPI
	queueURL string
	logger   *slog.Logger
}

// NewSQSPublisher creates an SQSPublisher from an AWS config and queue URL.
func NewSQSPublisher(awsCfg aws.Config, queueURL string, logger *slog.Logger) *SQSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSPublisher{
		api:      sqs.NewFromConfig(awsCfg),
		queueURL: queueURL,
		logger:   logger,
	}
}

// NewSQSPublisherWithAPI creates an SQSPublisher with a pre-configured SQSAPI.
// Useful for testing with a mock.
func NewSQSPublisherWithAPI(api SQSAPI, queueURL string, logger *slog.Logger) *SQSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSPublisher{api: api, queueURL: queueURL, logger: logger}
}

// Publish implements QueuePublisher.
func (p *SQSPublisher) Publish(ctx context.Context, msg types.NotificationMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal notification message", err)
	}

	out, err := p.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("failed to enqueue notification for PR %s", msg.Notification.PRID),
			err,
		)
	}

	p.logger.InfoContext(ctx, "notification enqueued",
		"pr_id", msg.Notification.PRID,
		"transition", msg.Notification.TransitionKey(),
		"sqs_message_id", aws.ToString(out.MessageId),
	)
	return nil
}

// Compile-time assertion that SQSPublisher satisfies QueuePublisher.
var _ QueuePublisher = (*SQSPublisher)(nil)
