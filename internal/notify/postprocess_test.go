package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prtrack/internal/cache"
	"prtrack/internal/resolve"
	"prtrack/internal/types"
)

type staticRefStore struct {
	labels map[string]string
}

func (s *staticRefStore) FindLabel(_ context.Context, orgID string, refType types.RefDataType, code string) (*types.ReferenceDatum, error) {
	if label, ok := s.labels[orgID+"/"+string(refType)+"/"+code]; ok {
		return &types.ReferenceDatum{Code: code, Type: refType, OrganizationID: orgID, DisplayName: label}, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundReferenceDatum, "no mapping", nil)
}

func newTestPostProcessor(labels map[string]string) *PostProcessor {
	refdata := resolve.NewRefDataResolver(
		&staticRefStore{labels: labels},
		cache.NewMemoryCache(),
		time.Hour,
		nil,
		&testLogger{},
	)
	return NewPostProcessor(refdata, &testLogger{})
}

func TestPostProcessor_FillsEmptyRequestorCell(t *testing.T) {
	p := newTestPostProcessor(nil)
	rc := testRenderingContext(types.TransitionSubmitted)

	content := types.EmailContent{
		HTML: `<table><tr><th>Submitted By</th><td class="requestor-name"> </td></tr></table>`,
	}

	out := p.Apply(context.Background(), content, rc)
	assert.Contains(t, out.HTML, `<td class="requestor-name">Jopi</td>`)
}

func TestPostProcessor_FillsEmptySubmittedByCell(t *testing.T) {
	p := newTestPostProcessor(nil)
	rc := testRenderingContext(types.TransitionSubmitted)

	content := types.EmailContent{
		HTML: `<tr><th>Submitted By</th><td></td></tr>`,
	}

	out := p.Apply(context.Background(), content, rc)
	assert.Contains(t, out.HTML, "<td>Jopi</td>")
}

func TestPostProcessor_ReplacesLiteralUnknown(t *testing.T) {
	p := newTestPostProcessor(nil)
	rc := testRenderingContext(types.TransitionSubmitted)

	content := types.EmailContent{
		HTML: `<td>Unknown</td>`,
		Text: "Submitted By: Unknown",
	}

	out := p.Apply(context.Background(), content, rc)
	assert.Equal(t, "<td>Jopi</td>", out.HTML)
	assert.Equal(t, "Submitted By: Jopi", out.Text)
}

func TestPostProcessor_UnresolvedNameLeavesUnknown(t *testing.T) {
	p := newTestPostProcessor(nil)
	rc := testRenderingContext(types.TransitionSubmitted)
	rc.RequestorName = resolve.UnknownName

	content := types.EmailContent{HTML: `<td>Unknown</td>`}

	out := p.Apply(context.Background(), content, rc)
	assert.Equal(t, `<td>Unknown</td>`, out.HTML, "an unresolved name must not loop the replacement")
}

func TestPostProcessor_NameContainingFallbackTokenIsStable(t *testing.T) {
	p := newTestPostProcessor(nil)
	rc := testRenderingContext(types.TransitionSubmitted)
	rc.RequestorName = "Mr Unknown"

	content := types.EmailContent{Text: "Submitted by: Unknown"}

	once := p.Apply(context.Background(), content, rc)
	twice := p.Apply(context.Background(), once, rc)

	assert.Equal(t, "Submitted by: Unknown", once.Text,
		"a name carrying the fallback token must not be substituted into plaintext")
	assert.Equal(t, once, twice)
}

func TestPostProcessor_TokenSubstitution(t *testing.T) {
	p := newTestPostProcessor(nil)
	rc := testRenderingContext(types.TransitionSubmitted)

	content := types.EmailContent{
		Subject: "PR {{PR_NUMBER}} update",
		Text:    "{{REQUESTOR_NAME}} submitted {{PR_NUMBER}} ({{CATEGORY}}). {{NOT_A_TOKEN}} stays.",
	}

	out := p.Apply(context.Background(), content, rc)
	assert.Equal(t, "PR PR-2025-001 update", out.Subject)
	assert.Equal(t, "Jopi submitted PR-2025-001 (Administrative Overhead). {{NOT_A_TOKEN}} stays.", out.Text)
}

func TestPostProcessor_SweepsBareCodesInCells(t *testing.T) {
	p := newTestPostProcessor(map[string]string{
		"org-1/vendor/889123": "Globex Corporation",
	})
	rc := testRenderingContext(types.TransitionSubmitted)

	content := types.EmailContent{
		HTML: `<td>889123</td><td>7_administrative_overhead</td><td>USD 100.00</td>`,
	}

	out := p.Apply(context.Background(), content, rc)
	assert.Contains(t, out.HTML, "<td>Globex Corporation</td>")
	assert.Contains(t, out.HTML, "<td>Administrative Overhead</td>")
	assert.Contains(t, out.HTML, "<td>USD 100.00</td>", "non-code cells are untouched")
}

func TestPostProcessor_Idempotent(t *testing.T) {
	p := newTestPostProcessor(map[string]string{
		"org-1/vendor/889123": "Globex Corporation",
	})
	rc := testRenderingContext(types.TransitionSubmitted)

	content := types.EmailContent{
		Subject: "{{PR_NUMBER}}",
		Text:    "Requestor: Unknown",
		HTML: `<td class="requestor-name"></td>` +
			`<td>Unknown</td>` +
			`<td>889123</td>` +
			`<td>{{VENDOR}}</td>`,
	}

	once := p.Apply(context.Background(), content, rc)
	twice := p.Apply(context.Background(), once, rc)
	assert.Equal(t, once, twice, "applying the pass twice must equal applying it once")
}

func TestPostProcessor_RenderedOutputPassesThroughUnchanged(t *testing.T) {
	r := newTestRenderer(t)
	p := newTestPostProcessor(nil)
	rc := testRenderingContext(types.TransitionSubmitted)

	rendered, err := r.Render(rc)
	require.NoError(t, err)

	out := p.Apply(context.Background(), *rendered, rc)
	assert.Equal(t, rendered.HTML, out.HTML, "fully resolved output needs no repair")
	assert.Equal(t, rendered.Text, out.Text)
}
