package notify

import (
	"context"
	"regexp"
	"strings"

	"prtrack/internal/resolve"
	"prtrack/internal/types"
)

// Repair patterns. Compiled once; the pass is idempotent because every
// replacement produces output that no pattern matches again. Names that carry
// the fallback token as a standalone word would break that, so the plaintext
// sweep skips them entirely.
var (
	// An empty requestor-name cell rendered from a missing name.
	emptyRequestorCellRe = regexp.MustCompile(`(?i)(<td[^>]*class="requestor-name"[^>]*>)\s*(</td>)`)

	// A "Submitted By" label followed by an empty value cell, for bodies
	// rendered outside this service.
	emptySubmittedByRe = regexp.MustCompile(`(?is)(submitted\s+by\s*:?\s*</t[hd]>\s*<td[^>]*>)\s*(</td>)`)

	// The literal fallback token between tags.
	unknownHTMLRe = regexp.MustCompile(`>(\s*)Unknown(\s*)<`)

	// The literal fallback token as a standalone word in plaintext.
	unknownTextRe = regexp.MustCompile(`\bUnknown\b`)

	// {{TOKEN}} placeholders left by upstream templating.
	placeholderTokenRe = regexp.MustCompile(`\{\{([A-Z_]+)\}\}`)

	// A bare numeric or underscore-delimited code alone in a table cell.
	cellCodeRe = regexp.MustCompile(`(<td[^>]*>)\s*([0-9]+|[0-9A-Za-z]+(?:_[0-9A-Za-z]+)+)\s*(</td>)`)
)

// PostProcessor repairs rendered content that still carries unresolved
// placeholders: empty name cells, the literal "Unknown", {{TOKEN}} markers,
// and bare reference codes inside table cells. Applying the pass twice yields
// the same output as applying it once.
type PostProcessor struct {
	refdata *resolve.RefDataResolver
	logger  types.Logger
}

// NewPostProcessor creates a PostProcessor. refdata may be nil, which
// disables the reference-code sweep.
func NewPostProcessor(refdata *resolve.RefDataResolver, logger types.Logger) *PostProcessor {
	return &PostProcessor{refdata: refdata, logger: logger}
}

// Apply returns a repaired copy of content. The input is never mutated.
func (p *PostProcessor) Apply(ctx context.Context, content types.EmailContent, rc RenderingContext) types.EmailContent {
	out := content
	name := rc.RequestorName
	if strings.TrimSpace(name) == "" {
		name = resolve.UnknownName
	}

	out.Subject = p.substituteTokens(out.Subject, rc)
	out.Text = p.repairText(out.Text, name, rc)
	out.HTML = p.repairHTML(ctx, out.HTML, name, rc)
	return out
}

func (p *PostProcessor) repairHTML(ctx context.Context, html, name string, rc RenderingContext) string {
	html = emptyRequestorCellRe.ReplaceAllString(html, "${1}"+name+"${2}")
	html = emptySubmittedByRe.ReplaceAllString(html, "${1}"+name+"${2}")
	if name != resolve.UnknownName {
		html = unknownHTMLRe.ReplaceAllString(html, ">${1}"+name+"${2}<")
	}
	html = p.substituteTokens(html, rc)
	html = p.sweepCellCodes(ctx, html, rc)
	return html
}

func (p *PostProcessor) repairText(text, name string, rc RenderingContext) string {
	if !unknownTextRe.MatchString(name) {
		text = unknownTextRe.ReplaceAllString(text, name)
	}
	return p.substituteTokens(text, rc)
}

// substituteTokens replaces the fixed {{TOKEN}} set. Unrecognized tokens are
// left untouched.
func (p *PostProcessor) substituteTokens(s string, rc RenderingContext) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	values := map[string]string{
		"REQUESTOR_NAME":  rc.RequestorName,
		"REQUESTOR_EMAIL": rc.RequestorEmail,
		"APPROVER_NAME":   rc.ApproverName,
		"VENDOR":          rc.VendorLabel,
		"CATEGORY":        rc.CategoryLabel,
		"EXPENSE_TYPE":    rc.ExpenseTypeLabel,
		"SITE":            rc.SiteLabel,
		"DETAIL_URL":      rc.DetailURL(),
	}
	if rc.PR != nil {
		values["PR_NUMBER"] = rc.PR.Number
		values["PR_ID"] = rc.PR.ID
		values["STATUS"] = string(rc.Event.NewStatus)
	}
	return placeholderTokenRe.ReplaceAllStringFunc(s, func(match string) string {
		token := placeholderTokenRe.FindStringSubmatch(match)[1]
		if v, ok := values[token]; ok && v != "" {
			return v
		}
		return match
	})
}

// sweepCellCodes rewrites bare numeric and underscore-delimited codes found
// alone in table cells. Best effort: numeric codes resolve as vendors,
// underscore codes format locally. Anything unresolvable stays as-is.
func (p *PostProcessor) sweepCellCodes(ctx context.Context, html string, rc RenderingContext) string {
	if p.refdata == nil || rc.PR == nil {
		return html
	}
	org := rc.PR.OrganizationID
	return cellCodeRe.ReplaceAllStringFunc(html, func(match string) string {
		parts := cellCodeRe.FindStringSubmatch(match)
		open, code, closing := parts[1], parts[2], parts[3]

		var label string
		if strings.Contains(code, "_") {
			label = resolve.FormatUnderscoreCode(code)
		} else {
			label = p.refdata.ResolveLabel(ctx, org, types.RefVendor, code)
		}
		if label == "" || label == code {
			return match
		}
		return open + label + closing
	})
}
