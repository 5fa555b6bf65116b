package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prtrack/internal/cache"
	"prtrack/internal/types"
)

// fakeRefDataStore implements RefDataStore over a fixed table keyed by
// "org/type/code" and counts lookups.
type fakeRefDataStore struct {
	labels   map[string]string
	lookups  int
	failWith error
}

func (f *fakeRefDataStore) FindLabel(_ context.Context, orgID string, refType types.RefDataType, code string) (*types.ReferenceDatum, error) {
	f.lookups++
	if f.failWith != nil {
		return nil, f.failWith
	}
	key := orgID + "/" + string(refType) + "/" + code
	if label, ok := f.labels[key]; ok {
		return &types.ReferenceDatum{Code: code, Type: refType, OrganizationID: orgID, DisplayName: label}, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundReferenceDatum, "no mapping", nil)
}

func newTestRefResolver(store *fakeRefDataStore) *RefDataResolver {
	return NewRefDataResolver(store, cache.NewMemoryCache(), time.Hour, nil, &testLogger{})
}

func TestResolveLabel_ShortPlainCodePassesThrough(t *testing.T) {
	store := &fakeRefDataStore{}
	r := newTestRefResolver(store)

	assert.Equal(t, "Travel", r.ResolveLabel(context.Background(), "org-1", types.RefCategory, "Travel"))
	assert.Zero(t, store.lookups, "legacy free-text values skip the store")
}

func TestResolveLabel_UnderscoreFormatting(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"7_administrative_overhead", "Administrative Overhead"},
		{"office_supplies", "Office Supplies"},
		{"12_it_hardware", "It Hardware"},
		{"3_travel", "Travel"},
	}

	store := &fakeRefDataStore{}
	r := newTestRefResolver(store)

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, r.ResolveLabel(context.Background(), "org-1", types.RefCategory, tt.code))
		})
	}
	assert.Zero(t, store.lookups, "underscore codes format locally")
}

func TestResolveLabel_StoreHitCached(t *testing.T) {
	store := &fakeRefDataStore{
		labels: map[string]string{
			"org-1/vendor/1042": "Acme Industrial Supply",
		},
	}
	r := newTestRefResolver(store)

	first := r.ResolveLabel(context.Background(), "org-1", types.RefVendor, "1042")
	require.Equal(t, "Acme Industrial Supply", first)
	require.Equal(t, 1, store.lookups)

	second := r.ResolveLabel(context.Background(), "org-1", types.RefVendor, "1042")
	assert.Equal(t, "Acme Industrial Supply", second)
	assert.Equal(t, 1, store.lookups, "second resolution must hit the cache")
}

func TestResolveLabel_NumericVendorFallback(t *testing.T) {
	r := newTestRefResolver(&fakeRefDataStore{})

	label := r.ResolveLabel(context.Background(), "org-1", types.RefVendor, "1099")
	assert.Equal(t, "Vendor #1099", label)
}

func TestResolveLabel_NumericNonVendorDegradesToCode(t *testing.T) {
	r := newTestRefResolver(&fakeRefDataStore{})

	label := r.ResolveLabel(context.Background(), "org-1", types.RefSite, "9913847")
	assert.Equal(t, "9913847", label, "the vendor placeholder applies to vendors only")
}

func TestResolveLabel_LookupErrorDegradesToCode(t *testing.T) {
	store := &fakeRefDataStore{
		failWith: types.NewAppError(types.ErrCodeInternalDB, "connection refused", nil),
	}
	r := newTestRefResolver(store)

	label := r.ResolveLabel(context.Background(), "org-1", types.RefVendor, "1099")
	assert.Equal(t, "1099", label, "infra errors degrade to the original code")
}

func TestResolveLabel_OrgScoping(t *testing.T) {
	store := &fakeRefDataStore{
		labels: map[string]string{
			"org-1/vendor/77001042": "Acme Industrial Supply",
		},
	}
	r := newTestRefResolver(store)

	assert.Equal(t, "Acme Industrial Supply", r.ResolveLabel(context.Background(), "org-1", types.RefVendor, "77001042"))
	assert.Equal(t, "Vendor #77001042", r.ResolveLabel(context.Background(), "org-2", types.RefVendor, "77001042"))
}

func TestFormatUnderscoreCode(t *testing.T) {
	assert.Equal(t, "Administrative Overhead", FormatUnderscoreCode("7_administrative_overhead"))
	assert.Equal(t, "Overhead", FormatUnderscoreCode("overhead_"))
	assert.Equal(t, "_", FormatUnderscoreCode("_"))
}
