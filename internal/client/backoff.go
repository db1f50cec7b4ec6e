package client

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// LinearBackOff waits BaseDelay*N before the Nth retry and stops after
// MaxAttempts retries. It is not safe for concurrent use; the controller
// only touches it under its own lock.
type LinearBackOff struct {
	BaseDelay   time.Duration
	MaxAttempts int

	attempt int
}

var _ backoff.BackOff = (*LinearBackOff)(nil)

// NewLinearBackOff creates a schedule starting at attempt zero
func NewLinearBackOff(baseDelay time.Duration, maxAttempts int) *LinearBackOff {
	return &LinearBackOff{BaseDelay: baseDelay, MaxAttempts: maxAttempts}
}

// NextBackOff advances to the next attempt and returns its delay, or
// backoff.Stop once the budget is spent.
func (b *LinearBackOff) NextBackOff() time.Duration {
	if b.attempt >= b.MaxAttempts {
		return backoff.Stop
	}
	b.attempt++
	return b.BaseDelay * time.Duration(b.attempt)
}

// Reset returns to the first step
func (b *LinearBackOff) Reset() {
	b.attempt = 0
}

// Attempt is the number of retries handed out since the last Reset
func (b *LinearBackOff) Attempt() int {
	return b.attempt
}
