package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"prtrack/internal/types"
)

// NotificationLogRepo manages the append-only notification log. The UNIQUE
// constraint on (pr_id, transition_key) is the idempotency guard: claiming a
// transition and checking for a prior claim are a single atomic insert.
type NotificationLogRepo struct {
	db    DBTX
	clock types.Clock
}

// NewNotificationLogRepo creates a NotificationLogRepo bound to a pool or
// transaction.
func NewNotificationLogRepo(db DBTX, clock types.Clock) *NotificationLogRepo {
	return &NotificationLogRepo{db: db, clock: clock}
}

// InsertPendingIfNotExists atomically claims the (prID, transitionKey) pair by
// inserting a pending entry. Returns the entry ID and true when this call won
// the claim, or the existing entry's ID and false when a prior claim exists.
//
// ON CONFLICT DO NOTHING makes the check-then-act race impossible: two
// concurrent triggers for the same transition resolve to exactly one claim.
func (r *NotificationLogRepo) InsertPendingIfNotExists(ctx context.Context, prID, transitionKey string, recipients []string) (string, bool, error) {
	id := uuid.NewString()
	now := r.clock.Now()

	query := `
		INSERT INTO notification_log (id, pr_id, transition_key, recipients, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pr_id, transition_key) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, id, prID, transitionKey, recipients, string(types.NotificationPending), now)
	if err != nil {
		return "", false, types.NewAppError(types.ErrCodeInternalDB, "failed to claim notification entry", err)
	}
	if tag.RowsAffected() == 1 {
		return id, true, nil
	}

	existing, err := r.Get(ctx, prID, transitionKey)
	if err != nil {
		return "", false, err
	}
	return existing.ID, false, nil
}

// Get fetches the log entry for a (prID, transitionKey) pair.
func (r *NotificationLogRepo) Get(ctx context.Context, prID, transitionKey string) (*types.NotificationLogEntry, error) {
	query := `
		SELECT id, pr_id, transition_key, recipients, status,
		       COALESCE(failure_reason, ''), created_at, sent_at
		FROM notification_log
		WHERE pr_id = $1 AND transition_key = $2`

	var entry types.NotificationLogEntry
	err := r.db.QueryRow(ctx, query, prID, transitionKey).Scan(
		&entry.ID, &entry.PRID, &entry.TransitionKey, &entry.Recipients, &entry.Status,
		&entry.FailureReason, &entry.CreatedAt, &entry.SentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(
				types.ErrCodeNotFoundNotification,
				fmt.Sprintf("no notification entry for PR %s transition %s", prID, transitionKey),
				err,
			)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch notification entry", err)
	}
	return &entry, nil
}

// HasEntry reports whether any entry exists for the (prID, transitionKey)
// pair, regardless of status.
func (r *NotificationLogRepo) HasEntry(ctx context.Context, prID, transitionKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM notification_log WHERE pr_id = $1 AND transition_key = $2)`,
		prID, transitionKey,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check notification entry", err)
	}
	return exists, nil
}

// MarkSent transitions a pending entry to sent and records the delivery time
// and final recipient list.
func (r *NotificationLogRepo) MarkSent(ctx context.Context, id string, recipients []string) error {
	now := r.clock.Now()
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_log SET status = $2, recipients = $3, sent_at = $4, failure_reason = NULL WHERE id = $1`,
		id, string(types.NotificationSent), recipients, now,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification sent", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(
			types.ErrCodeNotFoundNotification,
			fmt.Sprintf("notification entry %s not found", id),
			nil,
		)
	}
	return nil
}

// MarkFailed transitions an entry to failed with a human-readable reason.
// Failed entries keep their claim; retries go through RetryFailed.
func (r *NotificationLogRepo) MarkFailed(ctx context.Context, id, reason string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_log SET status = $2, failure_reason = $3 WHERE id = $1`,
		id, string(types.NotificationFailed), nilIfEmpty(reason),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(
			types.ErrCodeNotFoundNotification,
			fmt.Sprintf("notification entry %s not found", id),
			nil,
		)
	}
	return nil
}

// RetryFailed re-arms a failed entry back to pending so a manual retry can
// reuse the existing claim. Entries in sent state are never re-armed.
func (r *NotificationLogRepo) RetryFailed(ctx context.Context, prID, transitionKey string) (string, bool, error) {
	var id string
	err := r.db.QueryRow(ctx,
		`UPDATE notification_log SET status = $3, failure_reason = NULL
		 WHERE pr_id = $1 AND transition_key = $2 AND status = $4
		 RETURNING id`,
		prID, transitionKey, string(types.NotificationPending), string(types.NotificationFailed),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, types.NewAppError(types.ErrCodeInternalDB, "failed to re-arm notification entry", err)
	}
	return id, true, nil
}
