package notify

import (
	"context"

	"prtrack/internal/types"
)

// NotificationLog is the subset of the notification log repository the
// pipeline depends on.
type NotificationLog interface {
	InsertPendingIfNotExists(ctx context.Context, prID, transitionKey string, recipients []string) (string, bool, error)
	Get(ctx context.Context, prID, transitionKey string) (*types.NotificationLogEntry, error)
	HasEntry(ctx context.Context, prID, transitionKey string) (bool, error)
	MarkSent(ctx context.Context, id string, recipients []string) error
	MarkFailed(ctx context.Context, id, reason string) error
	RetryFailed(ctx context.Context, prID, transitionKey string) (string, bool, error)
}

// Guard enforces at-most-one notification per (PR, transition). The claim is
// a conditional insert, so two concurrent triggers for the same transition
// race on the store's uniqueness constraint instead of a check-then-act gap.
type Guard struct {
	log    NotificationLog
	logger types.Logger
}

// NewGuard creates a Guard over the notification log.
func NewGuard(log NotificationLog, logger types.Logger) *Guard {
	return &Guard{log: log, logger: logger}
}

// AlreadyNotified reports whether any entry exists for the transition.
// Read-only; Claim is the authoritative gate before a send.
func (g *Guard) AlreadyNotified(ctx context.Context, prID, transitionKey string) (bool, error) {
	return g.log.HasEntry(ctx, prID, transitionKey)
}

// Claim attempts to claim the transition by inserting a pending entry.
// Returns the entry ID and true when the claim was won. A lost claim means a
// prior invocation already sent, failed, or is in flight; the caller treats
// it as a successful no-op.
func (g *Guard) Claim(ctx context.Context, prID, transitionKey string, recipients []string) (string, bool, error) {
	id, created, err := g.log.InsertPendingIfNotExists(ctx, prID, transitionKey, recipients)
	if err != nil {
		return "", false, err
	}
	if !created {
		g.logger.Info("duplicate notification suppressed",
			"pr_id", prID,
			"transition", transitionKey,
		)
	}
	return id, created, nil
}

// Rearm flips a failed entry back to pending so a retry can reuse its claim.
// Returns false when no failed entry exists for the transition; sent and
// pending entries are never re-armed.
func (g *Guard) Rearm(ctx context.Context, prID, transitionKey string) (string, bool, error) {
	return g.log.RetryFailed(ctx, prID, transitionKey)
}
