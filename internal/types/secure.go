package types

import "crypto/subtle"

// secretMask is what a SecretString shows to fmt, JSON encoding, and
// structured log output in place of the real value.
const secretMask = "***REDACTED***"

// SecretString holds a credential the service carries in configuration: the
// trigger-surface bearer token, the database URL, the Redis password. Both
// fmt.Stringer and json.Marshaler render the mask, so a config dump or log
// attribute can never leak the value. The raw string leaves the type only
// through Unmask, which keeps the leak surface down to a handful of
// greppable call sites.
type SecretString string

// String renders the mask. Covers %s, %v, and any logger that walks the
// fmt.Stringer interface.
func (s SecretString) String() string {
	return secretMask
}

// MarshalJSON encodes the mask as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + secretMask + `"`), nil
}

// Unmask returns the raw value for the point where it crosses a process
// boundary, such as opening a connection or signing a request.
func (s SecretString) Unmask() string {
	return string(s)
}

// Equal reports whether candidate matches the secret. The comparison runs in
// constant time so callers authenticating bearer tokens do not leak length or
// prefix information through timing.
func (s SecretString) Equal(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(s), []byte(candidate)) == 1
}
