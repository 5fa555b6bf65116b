package external

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"prtrack/internal/types"
)

// Stub implementations allow the application to boot in local/test mode
// without real external service credentials. They log all actions and return
// predictable, safe default values.

// StubMailProvider implements MailProvider by logging calls and returning
// a fake message ID. Used when EMAIL_PROVIDER=stub or APP_ENV=local.
type StubMailProvider struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []types.SendInput
}

// NewStubMailProvider creates a new StubMailProvider.
func NewStubMailProvider(logger *slog.Logger) *StubMailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubMailProvider{logger: logger}
}

func (s *StubMailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.mu.Lock()
	s.sent = append(s.sent, input)
	n := len(s.sent)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "stub: Send email called",
		"to", types.RedactEmail(input.To),
		"cc_count", len(input.Cc),
		"subject", input.Subject,
		"reference_id", input.ReferenceID,
	)
	return fmt.Sprintf("msg_stub_%d", n), nil
}

// Sent returns a copy of every SendInput received. Intended for tests.
func (s *StubMailProvider) Sent() []types.SendInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.SendInput, len(s.sent))
	copy(out, s.sent)
	return out
}

// StubAuthDirectory implements AuthDirectory against a fixed in-memory table.
// Lookups are case-insensitive; unknown addresses miss with a typed error.
type StubAuthDirectory struct {
	logger  *slog.Logger
	entries map[string]string
}

// NewStubAuthDirectory creates a StubAuthDirectory over the given
// email-to-name table.
func NewStubAuthDirectory(logger *slog.Logger, entries map[string]string) *StubAuthDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	normalized := make(map[string]string, len(entries))
	for email, name := range entries {
		normalized[strings.ToLower(email)] = name
	}
	return &StubAuthDirectory{logger: logger, entries: normalized}
}

func (s *StubAuthDirectory) LookupDisplayName(ctx context.Context, email string) (string, error) {
	name, ok := s.entries[strings.ToLower(email)]
	if !ok {
		return "", types.NewAppError(
			types.ErrCodeNotFoundUser,
			fmt.Sprintf("directory has no entry for %s", types.RedactEmail(email)),
			nil,
		)
	}
	s.logger.InfoContext(ctx, "stub: directory lookup",
		"email", types.RedactEmail(email),
	)
	return name, nil
}

// StubQueuePublisher implements QueuePublisher by recording messages.
type StubQueuePublisher struct {
	logger *slog.Logger

	mu       sync.Mutex
	messages []types.NotificationMessage
}

// NewStubQueuePublisher creates a new StubQueuePublisher.
func NewStubQueuePublisher(logger *slog.Logger) *StubQueuePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubQueuePublisher{logger: logger}
}

func (s *StubQueuePublisher) Publish(ctx context.Context, msg types.NotificationMessage) error {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "stub: Publish called",
		"pr_id", msg.Notification.PRID,
		"transition", msg.Notification.TransitionKey(),
	)
	return nil
}

// Messages returns a copy of every published message. Intended for tests.
func (s *StubQueuePublisher) Messages() []types.NotificationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.NotificationMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

var _ MailProvider = (*StubMailProvider)(nil)
var _ AuthDirectory = (*StubAuthDirectory)(nil)
var _ QueuePublisher = (*StubQueuePublisher)(nil)
