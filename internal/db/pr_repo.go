package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"prtrack/internal/types"
)

// PurchaseRequestRepo provides read-only access to purchase request snapshots.
// The approval state machine owns writes; the notification pipeline only
// consults the current snapshot while rendering.
type PurchaseRequestRepo struct {
	db DBTX
}

// NewPurchaseRequestRepo creates a PurchaseRequestRepo bound to a pool or
// transaction.
func NewPurchaseRequestRepo(db DBTX) *PurchaseRequestRepo {
	return &PurchaseRequestRepo{db: db}
}

const prColumns = `
	id, organization_id, number, status,
	requestor_email, COALESCE(requestor_name, ''), COALESCE(approver_email, ''),
	COALESCE(vendor_code, ''), COALESCE(category_code, ''),
	COALESCE(expense_type_code, ''), COALESCE(site_code, ''),
	COALESCE(currency, ''), amount, required_date, COALESCE(notes, ''),
	is_urgent, created_at, updated_at`

// GetByID fetches a purchase request by its identifier. A missing row is a
// typed not-found error so callers can reject the trigger outright.
func (r *PurchaseRequestRepo) GetByID(ctx context.Context, id string) (*types.PurchaseRequest, error) {
	query := `SELECT` + prColumns + ` FROM purchase_requests WHERE id = $1`

	pr, err := scanPurchaseRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(
				types.ErrCodeNotFoundPurchaseRequest,
				fmt.Sprintf("purchase request %s not found", id),
				err,
			)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch purchase request", err)
	}
	return pr, nil
}

func scanPurchaseRequest(row pgx.Row) (*types.PurchaseRequest, error) {
	var pr types.PurchaseRequest
	err := row.Scan(
		&pr.ID, &pr.OrganizationID, &pr.Number, &pr.Status,
		&pr.RequestorEmail, &pr.RequestorName, &pr.ApproverEmail,
		&pr.VendorCode, &pr.CategoryCode,
		&pr.ExpenseTypeCode, &pr.SiteCode,
		&pr.Currency, &pr.Amount, &pr.RequiredDate, &pr.Notes,
		&pr.IsUrgent, &pr.CreatedAt, &pr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &pr, nil
}
