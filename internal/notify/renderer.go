package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"prtrack/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// notSpecified renders in place of any missing PR field.
const notSpecified = "Not specified"

// templateData is the struct passed into Go templates for rendering.
type templateData struct {
	Subject        string
	PRNumber       string
	RequestorName  string
	RequestorEmail string
	ApproverName   string
	OldStatus      string
	NewStatus      string
	Urgent         bool
	Vendor         string
	Category       string
	ExpenseType    string
	Site           string
	Amount         string
	RequiredDate   string
	Notes          string
	DetailURL      string
}

// subjectPrefixes maps transition types to their email subject line prefix.
var subjectPrefixes = map[types.TransitionType]string{
	types.TransitionSubmitted:        "New Purchase Request Submitted",
	types.TransitionPendingApproval:  "Purchase Request Awaiting Your Approval",
	types.TransitionApproved:         "Purchase Request Approved",
	types.TransitionRejected:         "Purchase Request Rejected",
	types.TransitionRevisionRequired: "Purchase Request Needs Revision",
	types.TransitionResubmitted:      "Purchase Request Resubmitted",
}

// Renderer performs email template rendering using Go's html/template with
// embedded template files, one variant per transition type. Content is fully
// rendered client-side; the mail provider receives finished bodies.
type Renderer struct {
	htmlTemplates map[types.TransitionType]*template.Template
	textTemplates map[types.TransitionType]*texttemplate.Template
	logger        types.Logger
}

// NewRenderer parses the embedded templates and returns a Renderer.
// Returns an error if any template fails to parse.
func NewRenderer(logger types.Logger) (*Renderer, error) {
	r := &Renderer{
		htmlTemplates: make(map[types.TransitionType]*template.Template),
		textTemplates: make(map[types.TransitionType]*texttemplate.Template),
		logger:        logger,
	}

	// Read the base HTML layout shared by every variant.
	baseHTML, err := templateFS.ReadFile("templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to read base.html: %w", err)
	}

	transitions := []types.TransitionType{
		types.TransitionSubmitted,
		types.TransitionPendingApproval,
		types.TransitionApproved,
		types.TransitionRejected,
		types.TransitionRevisionRequired,
		types.TransitionResubmitted,
	}

	for _, tt := range transitions {
		name := string(tt)

		// Parse HTML: base layout + transition-specific content block.
		htmlContent, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.html", name))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to read %s.html: %w", name, err)
		}
		htmlTmpl, err := template.New("base").Parse(string(baseHTML))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to parse base.html: %w", err)
		}
		if _, err := htmlTmpl.Parse(string(htmlContent)); err != nil {
			return nil, fmt.Errorf("renderer: failed to parse %s.html: %w", name, err)
		}
		r.htmlTemplates[tt] = htmlTmpl

		// Parse plaintext template.
		txtContent, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.txt", name))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to read %s.txt: %w", name, err)
		}
		txtTmpl, err := texttemplate.New(name).Parse(string(txtContent))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to parse %s.txt: %w", name, err)
		}
		r.textTemplates[tt] = txtTmpl
	}

	return r, nil
}

// Render produces the subject, text, and HTML content for a transition. An
// absent PR snapshot is a typed failure; templates never execute against a
// nil PR.
func (r *Renderer) Render(rc RenderingContext) (*types.EmailContent, error) {
	if rc.PR == nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"purchase request snapshot is required for rendering",
			nil,
		)
	}

	htmlTmpl, ok := r.htmlTemplates[rc.TransitionType]
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidStatus,
			fmt.Sprintf("no HTML template for transition type %q", rc.TransitionType),
			nil,
		)
	}
	txtTmpl, ok := r.textTemplates[rc.TransitionType]
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidStatus,
			fmt.Sprintf("no text template for transition type %q", rc.TransitionType),
			nil,
		)
	}

	data := buildTemplateData(rc)

	var htmlBuf bytes.Buffer
	if err := htmlTmpl.Execute(&htmlBuf, data); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to render HTML for %q", rc.TransitionType),
			err,
		)
	}

	var txtBuf bytes.Buffer
	if err := txtTmpl.Execute(&txtBuf, data); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to render text for %q", rc.TransitionType),
			err,
		)
	}

	return &types.EmailContent{
		Subject: data.Subject,
		Text:    txtBuf.String(),
		HTML:    htmlBuf.String(),
	}, nil
}

// buildTemplateData flattens the rendering context into template fields,
// substituting "Not specified" for anything missing.
func buildTemplateData(rc RenderingContext) templateData {
	pr := rc.PR

	prefix := subjectPrefixes[rc.TransitionType]
	if prefix == "" {
		prefix = string(rc.TransitionType)
	}

	return templateData{
		Subject:        fmt.Sprintf("%s: %s", prefix, pr.Number),
		PRNumber:       pr.Number,
		RequestorName:  orNotSpecified(rc.RequestorName),
		RequestorEmail: orNotSpecified(rc.RequestorEmail),
		ApproverName:   orNotSpecified(rc.ApproverName),
		OldStatus:      string(rc.Event.OldStatus),
		NewStatus:      string(rc.Event.NewStatus),
		Urgent:         rc.Event.IsUrgent,
		Vendor:         orNotSpecified(rc.VendorLabel),
		Category:       orNotSpecified(rc.CategoryLabel),
		ExpenseType:    orNotSpecified(rc.ExpenseTypeLabel),
		Site:           orNotSpecified(rc.SiteLabel),
		Amount:         formatAmount(pr.Currency, pr.Amount),
		RequiredDate:   formatRequiredDate(pr),
		Notes:          rc.Notes,
		DetailURL:      rc.DetailURL(),
	}
}

// formatAmount renders "CUR 0.00" style amounts, e.g. "USD 1250.00".
func formatAmount(currency string, amount *float64) string {
	if amount == nil {
		return notSpecified
	}
	if currency == "" {
		return fmt.Sprintf("%.2f", *amount)
	}
	return fmt.Sprintf("%s %.2f", currency, *amount)
}

func formatRequiredDate(pr *types.PurchaseRequest) string {
	if pr.RequiredDate == nil {
		return notSpecified
	}
	return pr.RequiredDate.Format("Jan 2, 2006")
}

func orNotSpecified(s string) string {
	if s == "" {
		return notSpecified
	}
	return s
}
