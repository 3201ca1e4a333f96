package connection

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// Backoff computes reconnection delays.
type Backoff struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultBackoff returns 1s, 2s, 4s ... capped at 30s, 10 attempts.
func DefaultBackoff() Backoff {
	return Backoff{
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 10,
	}
}

// Delay returns the wait before the given attempt (1-indexed):
// BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	next := retry.WithCappedDuration(b.MaxDelay, retry.NewExponential(b.BaseDelay))
	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay, _ = next.Next()
		// Stop at the cap before the shift can overflow.
		if delay >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	return delay
}

// Exhausted reports whether no attempts remain after the given count.
func (b Backoff) Exhausted(attempts int) bool {
	return attempts >= b.MaxAttempts
}
