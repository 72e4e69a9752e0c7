// Package resilience guards calls to flaky downstream dependencies.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a call without attempting it.
var ErrOpen = errors.New("resilience: circuit open")

// Breaker sheds calls to a dependency after threshold consecutive failures.
// Once the cooldown elapses a single trial call is let through; its outcome
// either closes the circuit or restarts the cooldown. State is derived from
// the failure count and trip time rather than tracked as an explicit enum.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	clock     func() time.Time

	failures int
	openedAt time.Time
	trial    bool
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and stays open for cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// Do runs fn unless the circuit is open, in which case it returns ErrOpen
// without calling fn. fn's error is returned unwrapped.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.observe(err == nil)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return nil
	}
	if b.clock().Sub(b.openedAt) < b.cooldown {
		return ErrOpen
	}
	// Cooled down: admit one trial call at a time.
	if b.trial {
		return ErrOpen
	}
	b.trial = true
	return nil
}

func (b *Breaker) observe(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trial = false
	if ok {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.openedAt = b.clock()
	}
}

// State reports "closed", "open", or "half-open" for logs and health checks.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.failures < b.threshold:
		return "closed"
	case b.clock().Sub(b.openedAt) < b.cooldown:
		return "open"
	default:
		return "half-open"
	}
}
