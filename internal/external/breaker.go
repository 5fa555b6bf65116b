package external

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"prtrack/internal/types"
)

// BreakerMailProvider wraps a MailProvider with a circuit breaker so a
// degraded mail backend sheds load quickly instead of holding every trigger
// open until timeout.
//
// Rejections and rate limits count as failures; after five consecutive
// failures the breaker opens and sends fail fast with
// ErrCodeUpstreamUnavailable until the cool-down elapses.
type BreakerMailProvider struct {
	inner   MailProvider
	breaker *gobreaker.CircuitBreaker[string]
}

// NewBreakerMailProvider wraps the given provider with a named breaker.
func NewBreakerMailProvider(name string, inner MailProvider) *BreakerMailProvider {
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &BreakerMailProvider{inner: inner, breaker: cb}
}

// Send implements MailProvider.
func (b *BreakerMailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	msgID, err := b.breaker.Execute(func() (string, error) {
		return b.inner.Send(ctx, input)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", types.NewAppError(
				types.ErrCodeUpstreamUnavailable,
				"mail provider circuit breaker is open",
				err,
			)
		}
		return "", err
	}
	return msgID, nil
}

// Compile-time assertion that BreakerMailProvider satisfies MailProvider.
var _ MailProvider = (*BreakerMailProvider)(nil)
