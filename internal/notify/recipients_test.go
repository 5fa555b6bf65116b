package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"prtrack/internal/types"
)

const (
	requestor   = "requestor@example.com"
	approver    = "approver@example.com"
	procurement = "procurement@example.com"
)

func roleInput() RecipientInput {
	return RecipientInput{
		RequestorEmail:     requestor,
		ApproverEmail:      approver,
		ProcurementAddress: procurement,
	}
}

func TestBuildRecipients_RoleRules(t *testing.T) {
	tests := []struct {
		transition types.TransitionType
		wantTo     []string
		wantCc     []string
	}{
		{types.TransitionSubmitted, []string{procurement}, []string{requestor}},
		{types.TransitionPendingApproval, []string{approver}, []string{requestor}},
		{types.TransitionApproved, []string{requestor}, []string{procurement}},
		{types.TransitionRejected, []string{requestor, procurement}, nil},
		{types.TransitionRevisionRequired, []string{requestor, procurement}, nil},
		{types.TransitionResubmitted, []string{approver}, []string{requestor, procurement}},
	}

	for _, tt := range tests {
		t.Run(string(tt.transition), func(t *testing.T) {
			set := BuildRecipients(tt.transition, roleInput())
			assert.Equal(t, tt.wantTo, set.To)
			assert.Equal(t, tt.wantCc, set.Cc)
		})
	}
}

func TestBuildRecipients_DedupFirstSeenCasing(t *testing.T) {
	set := BuildRecipients(types.TransitionSubmitted, RecipientInput{
		ExplicitTo: []string{"a@x.com"},
		ExplicitCc: []string{"A@x.com", "b@y.com"},
	})

	assert.Equal(t, []string{"a@x.com"}, set.To)
	assert.Equal(t, []string{"b@y.com"}, set.Cc, "case-insensitive duplicate of a to address is dropped from cc")
	assert.Len(t, set.All(), 2)
}

func TestBuildRecipients_EmptyAddressesDropped(t *testing.T) {
	set := BuildRecipients(types.TransitionPendingApproval, RecipientInput{
		RequestorEmail:     requestor,
		ApproverEmail:      "",
		ProcurementAddress: procurement,
	})

	assert.Empty(t, set.To, "a missing approver yields no primary recipient")
	assert.True(t, set.IsEmpty())
}

func TestBuildRecipients_RequestorIsApprover(t *testing.T) {
	in := roleInput()
	in.ApproverEmail = requestor

	set := BuildRecipients(types.TransitionPendingApproval, in)

	assert.Equal(t, []string{requestor}, set.To)
	assert.Empty(t, set.Cc, "the same address never appears in both to and cc")
}

func TestBuildRecipients_ExplicitOverride(t *testing.T) {
	in := roleInput()
	in.ExplicitTo = []string{"override@example.com"}
	in.ExplicitCc = []string{"watcher@example.com"}

	set := BuildRecipients(types.TransitionSubmitted, in)

	assert.Equal(t, []string{"override@example.com"}, set.To)
	assert.Equal(t, []string{"watcher@example.com"}, set.Cc)
}

func TestCcForRecipient_ExcludesSelf(t *testing.T) {
	set := RecipientSet{
		To: []string{requestor, procurement},
		Cc: []string{"observer@example.com"},
	}

	cc := set.CcForRecipient("Requestor@Example.com")

	assert.Equal(t, []string{procurement, "observer@example.com"}, cc)
	assert.NotContains(t, cc, requestor)
}
