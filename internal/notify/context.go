package notify

import (
	"context"
	"strings"

	"prtrack/internal/resolve"
	"prtrack/internal/types"
)

// RenderingContext is the fully resolved view of one transition, built once
// per event and discarded after send. Every identity and reference code is
// resolved before any template executes.
type RenderingContext struct {
	PR             *types.PurchaseRequest
	Event          types.TransitionEvent
	TransitionType types.TransitionType

	RequestorName  string
	RequestorEmail string
	ApproverName   string
	ApproverEmail  string

	VendorLabel      string
	CategoryLabel    string
	ExpenseTypeLabel string
	SiteLabel        string

	Notes   string
	BaseURL string
}

// ContextBuilder assembles RenderingContexts from a trigger and a PR
// snapshot, running both resolvers.
type ContextBuilder struct {
	identity *resolve.IdentityResolver
	refdata  *resolve.RefDataResolver
	baseURL  string
}

// NewContextBuilder creates a ContextBuilder. baseURL is the deep-link base
// with no trailing slash.
func NewContextBuilder(identity *resolve.IdentityResolver, refdata *resolve.RefDataResolver, baseURL string) *ContextBuilder {
	return &ContextBuilder{
		identity: identity,
		refdata:  refdata,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Build resolves every name and code the templates need. Trigger metadata
// takes precedence over the PR snapshot for addresses; resolution failures
// degrade inside the resolvers and never surface here.
func (b *ContextBuilder) Build(ctx context.Context, pr *types.PurchaseRequest, n types.TriggerNotification, transition types.TransitionType) RenderingContext {
	requestorEmail := firstNonEmpty(n.RequestorEmail, pr.RequestorEmail)
	approverEmail := firstNonEmpty(n.ApproverEmail, pr.ApproverEmail)

	rc := RenderingContext{
		PR: pr,
		Event: types.TransitionEvent{
			PRID:      pr.ID,
			PRNumber:  pr.Number,
			OldStatus: types.PRStatus(n.OldStatus),
			NewStatus: types.PRStatus(n.NewStatus),
			IsUrgent:  n.IsUrgent || pr.IsUrgent,
		},
		TransitionType: transition,
		RequestorEmail: requestorEmail,
		ApproverEmail:  approverEmail,
		Notes:          firstNonEmpty(n.Notes, pr.Notes),
		BaseURL:        b.baseURL,
	}

	requestorHint := firstNonEmpty(n.RequestorName, pr.RequestorName)
	rc.RequestorName = b.identity.ResolveName(ctx, requestorEmail, requestorHint)
	if approverEmail != "" {
		rc.ApproverName = b.identity.ResolveName(ctx, approverEmail, "")
	}

	org := pr.OrganizationID
	rc.VendorLabel = b.refdata.ResolveLabel(ctx, org, types.RefVendor, pr.VendorCode)
	rc.CategoryLabel = b.refdata.ResolveLabel(ctx, org, types.RefCategory, pr.CategoryCode)
	rc.ExpenseTypeLabel = b.refdata.ResolveLabel(ctx, org, types.RefExpenseType, pr.ExpenseTypeCode)
	rc.SiteLabel = b.refdata.ResolveLabel(ctx, org, types.RefSite, pr.SiteCode)

	return rc
}

// DetailURL returns the deep link to the PR in the tracker UI.
func (rc RenderingContext) DetailURL() string {
	if rc.BaseURL == "" || rc.PR == nil {
		return ""
	}
	return rc.BaseURL + "/requests/" + rc.PR.ID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
