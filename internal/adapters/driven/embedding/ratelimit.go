// Package embedding holds shared pieces of the embedding provider
// adapters, currently the request rate limiter.
package embedding

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterConfig holds rate limiting configuration for a provider.
type LimiterConfig struct {
	// RequestsPerSecond is the sustained rate limit. Zero or negative
	// disables limiting.
	RequestsPerSecond float64

	// Burst is the maximum burst size.
	Burst int
}

// Limiter throttles embedding requests with a token bucket and honors
// backoff periods from provider 429 responses. A nil *Limiter is valid
// and never blocks.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// NewLimiter creates a limiter, or nil when the config disables limiting.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
	}
}

// Wait blocks until a request may proceed, respecting both the token
// bucket and any provider-imposed backoff.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if time.Now().Before(retryAt) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(retryAt)):
		}
	}

	return l.limiter.Wait(ctx)
}

// RecordThrottle sets a backoff period after a 429 response. Providers
// that omit Retry-After get a 30 second default.
func (l *Limiter) RecordThrottle(retryAfterSeconds int) {
	if l == nil {
		return
	}
	if retryAfterSeconds <= 0 {
		retryAfterSeconds = 30
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.retryAt = time.Now().Add(time.Duration(retryAfterSeconds) * time.Second)
}
