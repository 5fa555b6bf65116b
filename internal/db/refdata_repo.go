package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"prtrack/internal/types"
)

// ReferenceDataRepo provides lookups against the reference-data table holding
// code-to-label mappings for vendors, categories, expense types and sites.
type ReferenceDataRepo struct {
	db DBTX
}

// NewReferenceDataRepo creates a ReferenceDataRepo bound to a pool or
// transaction.
func NewReferenceDataRepo(db DBTX) *ReferenceDataRepo {
	return &ReferenceDataRepo{db: db}
}

// FindLabel fetches the display label for a code, scoped by organization and
// reference type. A missing mapping is a typed not-found error; the resolver
// degrades to a derived or raw label rather than failing the notification.
func (r *ReferenceDataRepo) FindLabel(ctx context.Context, orgID string, refType types.RefDataType, code string) (*types.ReferenceDatum, error) {
	query := `
		SELECT code, type, organization_id, display_name, created_at
		FROM reference_data
		WHERE organization_id = $1 AND type = $2 AND code = $3`

	var rd types.ReferenceDatum
	err := r.db.QueryRow(ctx, query, orgID, string(refType), code).Scan(
		&rd.Code, &rd.Type, &rd.OrganizationID, &rd.DisplayName, &rd.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(
				types.ErrCodeNotFoundReferenceDatum,
				fmt.Sprintf("no %s mapping for code %q", refType, code),
				err,
			)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch reference datum", err)
	}
	return &rd, nil
}
