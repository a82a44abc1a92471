package pagination

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// backoff tracks consecutive immediate retries of one page.
type backoff struct {
	config   RetryConfig
	next     time.Duration
	attempts int
}

func newBackoff(cfg RetryConfig) *backoff {
	return &backoff{config: cfg, next: cfg.InitialBackoff}
}

// reset is called after a page succeeds.
func (b *backoff) reset() {
	b.next = b.config.InitialBackoff
	b.attempts = 0
}

// wait sleeps before the next attempt. It returns ErrRetryExhausted once
// MaxAttempts consecutive retries were spent, or ErrContextCancelled when
// ctx ends first.
func (b *backoff) wait(ctx context.Context) error {
	b.attempts++
	if b.config.MaxAttempts > 0 && b.attempts > b.config.MaxAttempts {
		return ErrRetryExhausted
	}

	// Add jitter (±20% randomness)
	jitter := time.Duration(float64(b.next) * (0.8 + rand.Float64()*0.4))
	retryBackoffSeconds.Observe(jitter.Seconds())

	if jitter > 0 {
		timer := time.NewTimer(jitter)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrContextCancelled, err)
	}

	b.next = time.Duration(float64(b.next) * b.config.BackoffMultiplier)
	if b.config.MaxBackoff > 0 && b.next > b.config.MaxBackoff {
		b.next = b.config.MaxBackoff
	}
	return nil
}
