package resolve

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"prtrack/internal/cache"
	"prtrack/internal/types"
)

// shortCodeMaxLen is the length under which a plain alphanumeric code is
// assumed to be legacy free text and returned unchanged.
const shortCodeMaxLen = 12

// RefDataStore is the subset of the reference-data repository consumed by the
// resolver.
type RefDataStore interface {
	FindLabel(ctx context.Context, orgID string, refType types.RefDataType, code string) (*types.ReferenceDatum, error)
}

// RefDataResolver resolves vendor/category/expense-type/site codes to
// human-readable labels. Ordered rules:
//
//  1. a short plain code is treated as already human-readable
//  2. an underscore-delimited code is formatted locally with no store lookup
//  3. otherwise a scoped store query (organization + type), cached on hit
//  4. a fully numeric vendor code that fails to resolve becomes "Vendor #<code>"
//  5. any lookup error degrades to the original code
type RefDataResolver struct {
	store  RefDataStore
	cache  cache.Cache
	ttl    time.Duration
	clock  types.Clock
	logger types.Logger
}

// NewRefDataResolver creates a RefDataResolver. A nil cache or non-positive
// TTL disables caching.
func NewRefDataResolver(store RefDataStore, c cache.Cache, ttl time.Duration, clock types.Clock, logger types.Logger) *RefDataResolver {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &RefDataResolver{store: store, cache: c, ttl: ttl, clock: clock, logger: logger}
}

// ResolveLabel resolves a code to a display label. Never returns an error;
// failures degrade per the ordered rules above.
func (r *RefDataResolver) ResolveLabel(ctx context.Context, orgID string, refType types.RefDataType, code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}

	// Legacy free-text values pass straight through.
	if isShortPlainCode(code) {
		return code
	}

	// Underscore-delimited codes format locally without a store round trip.
	if strings.Contains(code, "_") {
		return FormatUnderscoreCode(code)
	}

	if label, ok := r.cachedLabel(ctx, orgID, refType, code); ok {
		return label
	}

	datum, err := r.store.FindLabel(ctx, orgID, refType, code)
	if err == nil {
		r.cacheLabel(ctx, orgID, refType, code, datum.DisplayName)
		return datum.DisplayName
	}

	if !types.IsNotFound(err) {
		r.logger.Warn("reference data lookup failed",
			"type", string(refType),
			"code", code,
			"error", err,
		)
		return code
	}

	// A raw numeric vendor id never reaches end users.
	if refType == types.RefVendor && isNumeric(code) {
		return fmt.Sprintf("Vendor #%s", code)
	}
	return code
}

func (r *RefDataResolver) cachedLabel(ctx context.Context, orgID string, refType types.RefDataType, code string) (string, bool) {
	if r.cache == nil || r.ttl <= 0 {
		return "", false
	}
	var entry types.ResolvedReferenceDatum
	ok, err := cache.GetJSON(ctx, r.cache, refDataCacheKey(orgID, refType, code), &entry)
	if err != nil {
		r.logger.Warn("reference data cache read failed", "error", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	return entry.DisplayName, true
}

func (r *RefDataResolver) cacheLabel(ctx context.Context, orgID string, refType types.RefDataType, code, label string) {
	if r.cache == nil || r.ttl <= 0 {
		return
	}
	entry := types.ResolvedReferenceDatum{
		Code:        code,
		Type:        refType,
		DisplayName: label,
		ResolvedAt:  r.clock.Now(),
	}
	if err := cache.SetJSON(ctx, r.cache, refDataCacheKey(orgID, refType, code), entry, r.ttl); err != nil {
		r.logger.Warn("reference data cache write failed", "error", err)
	}
}

// FormatUnderscoreCode formats an underscore-delimited code into a label:
// a leading numeric ordinal segment is stripped, remaining segments are
// title-cased and joined with spaces. "7_administrative_overhead" becomes
// "Administrative Overhead".
func FormatUnderscoreCode(code string) string {
	segments := strings.Split(code, "_")
	if len(segments) > 1 && isNumeric(segments[0]) {
		segments = segments[1:]
	}
	words := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		words = append(words, capitalize(seg))
	}
	if len(words) == 0 {
		return code
	}
	return strings.Join(words, " ")
}

// isShortPlainCode reports whether the code is short and purely alphabetic,
// covering legacy free-text values like "Travel" stored where a code belongs.
func isShortPlainCode(code string) bool {
	if len(code) > shortCodeMaxLen {
		return false
	}
	for _, r := range code {
		if !unicode.IsLetter(r) && r != ' ' {
			return false
		}
	}
	return true
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func refDataCacheKey(orgID string, refType types.RefDataType, code string) string {
	return fmt.Sprintf("refdata:%s:%s:%s", orgID, refType, code)
}
