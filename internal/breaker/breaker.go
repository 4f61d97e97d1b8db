// Package breaker provides advisory circuit breakers for providers wrapping
// unreliable external calls.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by callers that short-circuit a guarded call because
// the breaker reported open.
var ErrOpen = errors.New("circuit breaker is open")

// Breaker is a per-key failure counter with timed auto-reset. It does not
// gate calls itself: callers check IsOpen before attempting the external
// call and report the outcome afterwards with RecordSuccess/RecordFailure.
type Breaker struct {
	mutex        sync.Mutex
	threshold    int
	resetTimeout time.Duration
	failures     int
	lastFailure  time.Time
}

func New(threshold int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
	}
}

// RecordSuccess decrements the failure counter, floored at zero.
func (b *Breaker) RecordSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.failures > 0 {
		b.failures--
	}
}

// RecordFailure increments the failure counter and stamps the failure time.
func (b *Breaker) RecordFailure() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failures++
	b.lastFailure = time.Now()
}

// IsOpen reports whether the guarded dependency should currently be treated
// as unavailable. Once the reset timeout has elapsed since the last failure
// the breaker auto-resets as a side effect of the query.
func (b *Breaker) IsOpen() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.failures < b.threshold {
		return false
	}

	if time.Since(b.lastFailure) >= b.resetTimeout {
		b.failures = 0
		return false
	}

	return true
}

// Reset forces the failure counter back to zero.
func (b *Breaker) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failures = 0
}

// Failures returns the current failure count.
func (b *Breaker) Failures() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.failures
}
