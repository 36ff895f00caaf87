package messaging

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedSender throttles another Sender to a steady rate with a small burst.
type RateLimitedSender struct {
	next    Sender
	limiter *rate.Limiter
}

// NewRateLimitedSender allows perSecond sends per second with the given burst.
// perSecond <= 0 disables throttling.
func NewRateLimitedSender(next Sender, perSecond float64, burst int) *RateLimitedSender {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedSender{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimitedSender) Provider() string { return r.next.Provider() }

// Send waits for a token, honoring ctx, and then delegates.
func (r *RateLimitedSender) Send(ctx context.Context, from, to, text string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send throttled: %w", err)
	}
	return r.next.Send(ctx, from, to, text)
}
