package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"prtrack/internal/types"
)

// UserRepo provides lookups against the user directory table. The identity
// resolver uses it in two passes: an indexed exact-match lookup, then a
// bounded case-insensitive scan across the alias address columns.
type UserRepo struct {
	db DBTX
}

// NewUserRepo creates a UserRepo bound to a pool or transaction.
func NewUserRepo(db DBTX) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `
	id, organization_id, email,
	COALESCE(alt_email, ''), COALESCE(contact_email, ''),
	COALESCE(name, ''), created_at`

// FindByEmail performs an exact-match lookup on the primary email column.
// Returns a typed not-found error when no row matches.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*types.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(
				types.ErrCodeNotFoundUser,
				fmt.Sprintf("no user with email %s", types.RedactEmail(email)),
				err,
			)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch user by email", err)
	}
	return user, nil
}

// FindByAlias performs a case-insensitive match across every address column
// (email, alt_email, contact_email). The scan is bounded by limit; addresses
// beyond the window are treated as unresolvable rather than risking an
// unbounded table walk.
func (r *UserRepo) FindByAlias(ctx context.Context, email string, limit int) (*types.User, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT` + userColumns + ` FROM (
		SELECT * FROM users ORDER BY created_at DESC LIMIT $2
	) windowed
	WHERE LOWER(email) = $1
	   OR LOWER(COALESCE(alt_email, '')) = $1
	   OR LOWER(COALESCE(contact_email, '')) = $1
	LIMIT 1`

	user, err := scanUser(r.db.QueryRow(ctx, query, strings.ToLower(email), limit))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(
				types.ErrCodeNotFoundUser,
				fmt.Sprintf("no user with alias %s", types.RedactEmail(email)),
				err,
			)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan users by alias", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	err := row.Scan(
		&u.ID, &u.OrganizationID, &u.Email,
		&u.AltEmail, &u.ContactEmail,
		&u.Name, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
