package types

import (
	"fmt"
	"time"
)

// PRStatus is the lifecycle status of a purchase request. Status values are
// stored verbatim; transition keys are built from the raw values.
type PRStatus string

const (
	StatusDraft            PRStatus = "DRAFT"
	StatusSubmitted        PRStatus = "SUBMITTED"
	StatusPendingApproval  PRStatus = "PENDING_APPROVAL"
	StatusApproved         PRStatus = "APPROVED"
	StatusRejected         PRStatus = "REJECTED"
	StatusRevisionRequired PRStatus = "REVISION_REQUIRED"
	StatusResubmitted      PRStatus = "RESUBMITTED"
)

// TransitionType identifies the notification variant triggered by a status
// transition. Each type maps to one template variant and one recipient rule.
type TransitionType string

const (
	TransitionSubmitted        TransitionType = "submitted"
	TransitionPendingApproval  TransitionType = "pending_approval"
	TransitionApproved         TransitionType = "approved"
	TransitionRejected         TransitionType = "rejected"
	TransitionRevisionRequired TransitionType = "revision_required"
	TransitionResubmitted      TransitionType = "resubmitted"
)

// TransitionTypeFor maps a status transition to its notification variant.
// The variant is determined by the new status; the old status only
// participates in the transition key used for deduplication.
func TransitionTypeFor(oldStatus, newStatus PRStatus) (TransitionType, error) {
	switch newStatus {
	case StatusSubmitted:
		return TransitionSubmitted, nil
	case StatusPendingApproval:
		return TransitionPendingApproval, nil
	case StatusApproved:
		return TransitionApproved, nil
	case StatusRejected:
		return TransitionRejected, nil
	case StatusRevisionRequired:
		return TransitionRevisionRequired, nil
	case StatusResubmitted:
		return TransitionResubmitted, nil
	default:
		return "", NewAppError(
			ErrCodeValidationInvalidStatus,
			fmt.Sprintf("no notification variant for status transition %s -> %s", oldStatus, newStatus),
			nil,
		)
	}
}

// TransitionEvent describes a single PR status change. Immutable once created;
// produced by the external approval state machine.
type TransitionEvent struct {
	PRID      string    `json:"pr_id"`
	PRNumber  string    `json:"pr_number"`
	OldStatus PRStatus  `json:"old_status"`
	NewStatus PRStatus  `json:"new_status"`
	IsUrgent  bool      `json:"is_urgent"`
	Timestamp time.Time `json:"timestamp"`
}

// Key returns the transition key used for notification deduplication,
// e.g. "SUBMITTED->PENDING_APPROVAL".
func (e TransitionEvent) Key() string {
	return TransitionKey(e.OldStatus, e.NewStatus)
}

// TransitionKey builds the deduplication key for a status pair.
func TransitionKey(oldStatus, newStatus PRStatus) string {
	return fmt.Sprintf("%s->%s", oldStatus, newStatus)
}

// PurchaseRequest is the PR snapshot consulted read-only by the notification
// pipeline. The approval state machine owns the authoritative record.
type PurchaseRequest struct {
	ID             string   `json:"id" db:"id"`
	OrganizationID string   `json:"organization_id" db:"organization_id"`
	Number         string   `json:"number" db:"number"`
	Status         PRStatus `json:"status" db:"status"`

	RequestorEmail string `json:"requestor_email" db:"requestor_email"`
	RequestorName  string `json:"requestor_name,omitempty" db:"requestor_name"`
	ApproverEmail  string `json:"approver_email,omitempty" db:"approver_email"`

	VendorCode      string `json:"vendor_code,omitempty" db:"vendor_code"`
	CategoryCode    string `json:"category_code,omitempty" db:"category_code"`
	ExpenseTypeCode string `json:"expense_type_code,omitempty" db:"expense_type_code"`
	SiteCode        string `json:"site_code,omitempty" db:"site_code"`

	Currency     string     `json:"currency,omitempty" db:"currency"`
	Amount       *float64   `json:"amount,omitempty" db:"amount"`
	RequiredDate *time.Time `json:"required_date,omitempty" db:"required_date"`
	Notes        string     `json:"notes,omitempty" db:"notes"`

	IsUrgent  bool      `json:"is_urgent" db:"is_urgent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// User is a human user record in the document store. AliasEmails returns every
// address field the identity resolver scans during its case-insensitive pass.
type User struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Email          string    `json:"email" db:"email"`
	AltEmail       string    `json:"alt_email,omitempty" db:"alt_email"`
	ContactEmail   string    `json:"contact_email,omitempty" db:"contact_email"`
	Name           string    `json:"name,omitempty" db:"name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// AliasEmails returns the user's address fields in scan order.
func (u *User) AliasEmails() []string {
	return []string{u.Email, u.AltEmail, u.ContactEmail}
}

// RefDataType classifies a coded reference value.
type RefDataType string

const (
	RefVendor      RefDataType = "vendor"
	RefCategory    RefDataType = "category"
	RefExpenseType RefDataType = "expense_type"
	RefSite        RefDataType = "site"
)

// ReferenceDatum is a stored code-to-label mapping, scoped by organization.
type ReferenceDatum struct {
	Code           string      `json:"code" db:"code"`
	Type           RefDataType `json:"type" db:"type"`
	OrganizationID string      `json:"organization_id" db:"organization_id"`
	DisplayName    string      `json:"display_name" db:"display_name"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

// ResolvedIdentity is a cached identity resolution. NotFound marks an explicit
// negative entry so repeated unresolved lookups stay cheap.
type ResolvedIdentity struct {
	Key         string    `json:"key"`
	DisplayName string    `json:"display_name"`
	NotFound    bool      `json:"not_found,omitempty"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// ResolvedReferenceDatum is a cached reference-data resolution.
type ResolvedReferenceDatum struct {
	Code        string      `json:"code"`
	Type        RefDataType `json:"type"`
	DisplayName string      `json:"display_name"`
	ResolvedAt  time.Time   `json:"resolved_at"`
}

// EmailContent is a fully rendered message. Immutable once rendered; the
// post-processor produces a new instance rather than mutating in place.
type EmailContent struct {
	Subject string            `json:"subject"`
	Text    string            `json:"text"`
	HTML    string            `json:"html"`
	Headers map[string]string `json:"headers,omitempty"`
}

// NotificationStatus is the lifecycle of a notification log entry.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// NotificationLogEntry records one notification attempt per (PR, transition).
// Append-only; the uniqueness of (PRID, TransitionKey) is enforced by the
// store and doubles as the idempotency guard.
type NotificationLogEntry struct {
	ID            string             `json:"id" db:"id"`
	PRID          string             `json:"pr_id" db:"pr_id"`
	TransitionKey string             `json:"transition_key" db:"transition_key"`
	Recipients    []string           `json:"recipients" db:"recipients"`
	Status        NotificationStatus `json:"status" db:"status"`
	FailureReason string             `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	SentAt        *time.Time         `json:"sent_at,omitempty" db:"sent_at"`
}

// SenderIdentity defines the sender for outgoing emails.
type SenderIdentity struct {
	Name    string
	Address string
}

// SendInput defines the contract for a single email transmission.
// The content is pre-rendered; providers must not template server-side.
type SendInput struct {
	To          string
	Cc          []string
	From        SenderIdentity
	Subject     string
	BodyText    string
	BodyHTML    string
	ReferenceID string
}

// RecipientOutcome is the per-recipient result of a dispatch.
type RecipientOutcome struct {
	Recipient         string `json:"recipient"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Sent              bool   `json:"sent"`
	FailureReason     string `json:"failure_reason,omitempty"`
}

// NotificationMessage is the queue transport envelope consumed by the
// notify worker. It carries the same canonical trigger payload as the HTTP
// surface plus correlation and retry metadata.
type NotificationMessage struct {
	TriggerRequest
	TraceID    string `json:"trace_id,omitempty"`
	RetryCount int    `json:"retry_count"`
}
