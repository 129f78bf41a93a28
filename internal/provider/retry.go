package provider

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Retry defaults. A failed oracle call is retried only when the error is
// transient; the delay doubles after each attempt.
const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 500 * time.Millisecond
)

// Retrier wraps a Provider and retries transient failures.
type Retrier struct {
	provider Provider
	attempts int
	delay    time.Duration
	logger   zerolog.Logger
}

// NewRetrier creates a Retrier with the default policy.
func NewRetrier(p Provider, logger zerolog.Logger) *Retrier {
	return &Retrier{
		provider: p,
		attempts: DefaultMaxAttempts,
		delay:    DefaultInitialDelay,
		logger:   logger,
	}
}

// Name returns the wrapped backend name.
func (r *Retrier) Name() string {
	return r.provider.Name()
}

// Models returns the wrapped backend's model list.
func (r *Retrier) Models() []string {
	return r.provider.Models()
}

// Chat sends the request, retrying transient errors with exponential
// backoff. Non-retryable errors (malformed output, bad request) are
// returned immediately.
func (r *Retrier) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var lastErr error
	delay := r.delay

	for attempt := 1; attempt <= r.attempts; attempt++ {
		resp, err := r.provider.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return nil, err
		}
		if attempt == r.attempts {
			break
		}

		r.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("oracle call failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, lastErr
}
