// Package external provides the anti-corruption layer between the PR
// notification domain and third-party vendor APIs. Provider clients translate
// vendor errors into domain AppErrors so the pipeline never branches on SDK
// error types.
package external

import (
	"context"

	"prtrack/internal/types"
)

// MailProvider sends a single pre-rendered email. Implementations must not
// template server-side; the pipeline owns all content.
type MailProvider interface {
	// Send transmits one message and returns the provider's message ID.
	Send(ctx context.Context, input types.SendInput) (string, error)
}

// AuthDirectory looks up display names in the organization's auth provider.
// The identity resolver consults it after the user store misses.
type AuthDirectory interface {
	// LookupDisplayName resolves an email to a display name. A miss is a
	// typed ErrCodeNotFoundUser error, not an empty string.
	LookupDisplayName(ctx context.Context, email string) (string, error)
}

// QueuePublisher enqueues a notification message for asynchronous processing
// by the notify worker.
type QueuePublisher interface {
	Publish(ctx context.Context, msg types.NotificationMessage) error
}
