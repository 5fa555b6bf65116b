// Package resolve implements the identity and reference-data resolvers that
// populate the rendering context before a notification is templated. Both
// resolvers degrade to documented fallbacks on failure; a resolution miss is
// never fatal to the notification.
package resolve

import (
	"context"
	"strings"
	"time"

	"prtrack/internal/cache"
	"prtrack/internal/external"
	"prtrack/internal/types"
)

// placeholderNames are hint values that look like names but are templating
// artifacts from the upstream workflow. They never short-circuit resolution.
var placeholderNames = map[string]struct{}{
	"pr requestor": {},
	"requestor":    {},
	"unknown":      {},
}

// UnknownName is the terminal fallback of the identity chain.
const UnknownName = "Unknown"

// UserStore is the subset of the user repository consumed by the resolver.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*types.User, error)
	FindByAlias(ctx context.Context, email string, limit int) (*types.User, error)
}

// IdentityResolver resolves an email address to a display name through a
// short-circuiting fallback chain:
//
//  1. the caller-provided hint, unless it is a known placeholder
//  2. the operator-maintained exception table
//  3. a cached resolution (positive or negative) younger than the TTL
//  4. the user store: exact email match, then a bounded case-insensitive
//     scan across alias address fields
//  5. the auth directory
//  6. mechanical derivation from the email local part
//  7. the literal "Unknown"
//
// Steps 2-6 write the cache, including explicit negatives, so repeated
// unresolved lookups stay cheap.
type IdentityResolver struct {
	users      UserStore
	directory  external.AuthDirectory
	cache      cache.Cache
	exceptions map[string]string
	ttl        time.Duration
	scanWindow int
	clock      types.Clock
	logger     types.Logger
}

// IdentityResolverOptions configures an IdentityResolver.
type IdentityResolverOptions struct {
	// Exceptions maps lowercase addresses to canonical display names.
	Exceptions map[string]string
	// TTL bounds cache entry age. Zero disables caching.
	TTL time.Duration
	// ScanWindow bounds the alias scan. Zero uses the store default.
	ScanWindow int
	Clock      types.Clock
	Logger     types.Logger
}

// NewIdentityResolver creates an IdentityResolver. The directory may be nil
// when no auth provider is configured; that step is then skipped.
func NewIdentityResolver(users UserStore, directory external.AuthDirectory, store cache.Cache, opts IdentityResolverOptions, logger types.Logger) *IdentityResolver {
	clock := opts.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	exceptions := make(map[string]string, len(opts.Exceptions))
	for email, name := range opts.Exceptions {
		exceptions[strings.ToLower(email)] = name
	}
	return &IdentityResolver{
		users:      users,
		directory:  directory,
		cache:      store,
		exceptions: exceptions,
		ttl:        opts.TTL,
		scanWindow: opts.ScanWindow,
		clock:      clock,
		logger:     logger,
	}
}

// ResolveName resolves an email to a display name. The hint, when present and
// not a placeholder, wins without any lookup. ResolveName never returns an
// error; the chain terminates at "Unknown".
func (r *IdentityResolver) ResolveName(ctx context.Context, email, hint string) string {
	// Step 1: trust the transition's own metadata unless it is a
	// placeholder artifact.
	if name := strings.TrimSpace(hint); name != "" && !isPlaceholderName(name) {
		return name
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return UnknownName
	}
	lower := strings.ToLower(email)

	// Step 2: exception table. The hit is cached like any other resolution
	// so shared-cache consumers see it too.
	if name, ok := r.exceptions[lower]; ok {
		r.cacheIdentity(ctx, lower, name, false)
		return name
	}

	// Step 3: cache, positive or negative.
	if cached, ok := r.cachedIdentity(ctx, lower); ok {
		if cached.NotFound {
			return r.derive(email)
		}
		return cached.DisplayName
	}

	// Step 4: user store, exact then alias scan.
	if name, ok := r.lookupStore(ctx, email); ok {
		r.cacheIdentity(ctx, lower, name, false)
		return name
	}

	// Step 5: auth directory.
	if r.directory != nil {
		name, err := r.directory.LookupDisplayName(ctx, email)
		if err == nil && strings.TrimSpace(name) != "" {
			r.cacheIdentity(ctx, lower, name, false)
			return name
		}
		if err != nil && !types.IsNotFound(err) {
			r.logger.Warn("directory lookup failed",
				"email", types.RedactEmail(email),
				"error", err,
			)
		}
	}

	// Both lookups missed; remember the negative so the next event for the
	// same address skips straight to derivation.
	r.cacheIdentity(ctx, lower, "", true)

	// Step 6/7: mechanical derivation, then "Unknown".
	return r.derive(email)
}

func (r *IdentityResolver) lookupStore(ctx context.Context, email string) (string, bool) {
	user, err := r.users.FindByEmail(ctx, email)
	if err != nil && types.IsNotFound(err) {
		user, err = r.users.FindByAlias(ctx, email, r.scanWindow)
	}
	if err != nil {
		if !types.IsNotFound(err) {
			r.logger.Warn("user store lookup failed",
				"email", types.RedactEmail(email),
				"error", err,
			)
		}
		return "", false
	}
	if strings.TrimSpace(user.Name) == "" {
		return "", false
	}
	return user.Name, true
}

func (r *IdentityResolver) cachedIdentity(ctx context.Context, key string) (*types.ResolvedIdentity, bool) {
	if r.cache == nil || r.ttl <= 0 {
		return nil, false
	}
	var entry types.ResolvedIdentity
	ok, err := cache.GetJSON(ctx, r.cache, identityCacheKey(key), &entry)
	if err != nil {
		r.logger.Warn("identity cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &entry, true
}

func (r *IdentityResolver) cacheIdentity(ctx context.Context, key, name string, notFound bool) {
	if r.cache == nil || r.ttl <= 0 {
		return
	}
	entry := types.ResolvedIdentity{
		Key:         key,
		DisplayName: name,
		NotFound:    notFound,
		ResolvedAt:  r.clock.Now(),
	}
	if err := cache.SetJSON(ctx, r.cache, identityCacheKey(key), entry, r.ttl); err != nil {
		r.logger.Warn("identity cache write failed", "error", err)
	}
}

// derive builds a display name from the email local part: split on
// `.`/`_`/`-`, capitalize each token, join with spaces.
// "jane.doe@example.com" becomes "Jane Doe".
func (r *IdentityResolver) derive(email string) string {
	name := DeriveNameFromEmail(email)
	if name == "" {
		return UnknownName
	}
	return name
}

// DeriveNameFromEmail mechanically derives a display name from an email's
// local part. Returns "" when nothing derivable remains.
func DeriveNameFromEmail(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return ""
	}
	tokens := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	if len(tokens) == 0 {
		return ""
	}
	for i, tok := range tokens {
		tokens[i] = capitalize(tok)
	}
	return strings.Join(tokens, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func isPlaceholderName(name string) bool {
	_, ok := placeholderNames[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func identityCacheKey(key string) string {
	return "identity:" + key
}
