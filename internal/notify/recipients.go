// Package notify implements the notification pipeline: recipient selection,
// template rendering, content post-processing, the idempotency guard, and the
// delivery orchestrator that fans sends out to the mail provider.
package notify

import (
	"strings"

	"prtrack/internal/types"
)

// RecipientSet holds the deduplicated to/cc address lists for one
// notification. No two addresses across to and cc compare equal
// case-insensitively; the first-seen casing is preserved for display.
type RecipientSet struct {
	To []string
	Cc []string
}

// All returns to followed by cc.
func (s RecipientSet) All() []string {
	out := make([]string, 0, len(s.To)+len(s.Cc))
	out = append(out, s.To...)
	out = append(out, s.Cc...)
	return out
}

// IsEmpty reports whether the set has no primary recipients.
func (s RecipientSet) IsEmpty() bool {
	return len(s.To) == 0
}

// RecipientInput carries the role addresses a transition can notify.
type RecipientInput struct {
	RequestorEmail     string
	ApproverEmail      string
	ProcurementAddress string

	// ExplicitTo/ExplicitCc override the role-based rules when the caller
	// supplies addresses directly on the trigger payload.
	ExplicitTo []string
	ExplicitCc []string
}

// BuildRecipients computes the recipient set for a transition type.
//
// Role rules per transition:
//
//	submitted          to: procurement            cc: requestor
//	pending_approval   to: approver               cc: requestor
//	approved           to: requestor              cc: procurement
//	rejected           to: requestor, procurement
//	revision_required  to: requestor, procurement
//	resubmitted        to: approver               cc: requestor, procurement
//
// Empty addresses are dropped; duplicates collapse case-insensitively with
// to taking precedence over cc.
func BuildRecipients(transition types.TransitionType, in RecipientInput) RecipientSet {
	if len(in.ExplicitTo) > 0 {
		return dedupSet(in.ExplicitTo, in.ExplicitCc)
	}

	var to, cc []string
	switch transition {
	case types.TransitionSubmitted:
		to = []string{in.ProcurementAddress}
		cc = []string{in.RequestorEmail}
	case types.TransitionPendingApproval:
		to = []string{in.ApproverEmail}
		cc = []string{in.RequestorEmail}
	case types.TransitionApproved:
		to = []string{in.RequestorEmail}
		cc = []string{in.ProcurementAddress}
	case types.TransitionRejected, types.TransitionRevisionRequired:
		to = []string{in.RequestorEmail, in.ProcurementAddress}
	case types.TransitionResubmitted:
		to = []string{in.ApproverEmail}
		cc = []string{in.RequestorEmail, in.ProcurementAddress}
	}

	set := dedupSet(to, in.ExplicitCc)
	set = dedupInto(set, cc)
	return set
}

// dedupSet builds a RecipientSet from raw to/cc lists, dropping empties and
// case-insensitive duplicates while keeping first-seen casing.
func dedupSet(to, cc []string) RecipientSet {
	seen := make(map[string]struct{}, len(to)+len(cc))
	set := RecipientSet{}

	for _, addr := range to {
		if a, ok := admit(seen, addr); ok {
			set.To = append(set.To, a)
		}
	}
	for _, addr := range cc {
		if a, ok := admit(seen, addr); ok {
			set.Cc = append(set.Cc, a)
		}
	}
	return set
}

// dedupInto appends additional cc addresses to an existing set, preserving
// its dedup invariant.
func dedupInto(set RecipientSet, cc []string) RecipientSet {
	seen := make(map[string]struct{}, len(set.To)+len(set.Cc)+len(cc))
	for _, addr := range set.All() {
		seen[strings.ToLower(addr)] = struct{}{}
	}
	for _, addr := range cc {
		if a, ok := admit(seen, addr); ok {
			set.Cc = append(set.Cc, a)
		}
	}
	return set
}

func admit(seen map[string]struct{}, addr string) (string, bool) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", false
	}
	key := strings.ToLower(addr)
	if _, dup := seen[key]; dup {
		return "", false
	}
	seen[key] = struct{}{}
	return addr, true
}

// CcForRecipient returns the cc list for one outgoing send: every other
// address in the set minus the target itself, compared case-insensitively.
func (s RecipientSet) CcForRecipient(recipient string) []string {
	target := strings.ToLower(recipient)
	var cc []string
	for _, addr := range s.All() {
		if strings.ToLower(addr) == target {
			continue
		}
		cc = append(cc, addr)
	}
	return cc
}
