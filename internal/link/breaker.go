package link

import (
	"time"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// BreakerOptions configures the circuit breaker.
type BreakerOptions struct {
	Threshold int
	Cooldown  time.Duration
}

// Decision is the breaker's answer to a connect attempt.
type Decision struct {
	Allowed bool
	// Remaining is the cooldown left when an attempt is rejected.
	Remaining time.Duration
	// HalfOpened is set when this call moved the breaker to HALF_OPEN.
	HalfOpened bool
}

// Breaker counts consecutive connect failures and suspends attempts for a
// cooldown once Threshold is reached. It trips only from its own failure
// counting.
type Breaker struct {
	opts BreakerOptions

	state     domain.CircuitState
	failures  int
	trippedAt time.Time
	probing   bool
}

// NewBreaker returns a closed breaker.
func NewBreaker(opts BreakerOptions) *Breaker {
	if opts.Threshold < 1 {
		opts.Threshold = 1
	}
	return &Breaker{opts: opts, state: domain.CircuitClosed}
}

// Allow decides whether a connect attempt may proceed at now.
func (b *Breaker) Allow(now time.Time) Decision {
	switch b.state {
	case domain.CircuitOpen:
		if remaining := b.remaining(now); remaining > 0 {
			return Decision{Remaining: remaining}
		}
		b.state = domain.CircuitHalfOpen
		b.probing = true
		return Decision{Allowed: true, HalfOpened: true}
	case domain.CircuitHalfOpen:
		if b.probing {
			return Decision{}
		}
		b.probing = true
		return Decision{Allowed: true}
	default:
		return Decision{Allowed: true}
	}
}

// RecordSuccess closes the breaker. It reports whether the breaker was not
// already closed.
func (b *Breaker) RecordSuccess() bool {
	changed := b.state != domain.CircuitClosed
	b.state = domain.CircuitClosed
	b.failures = 0
	b.trippedAt = time.Time{}
	b.probing = false
	return changed
}

// RecordFailure counts a failed attempt. It reports whether this failure
// opened the breaker.
func (b *Breaker) RecordFailure(now time.Time) bool {
	b.failures++
	b.probing = false
	if b.state == domain.CircuitHalfOpen || (b.state == domain.CircuitClosed && b.failures >= b.opts.Threshold) {
		b.state = domain.CircuitOpen
		b.trippedAt = now
		return true
	}
	return false
}

// Release ends a half-open probe that neither succeeded nor failed at the
// transport level, such as an authentication rejection.
func (b *Breaker) Release() {
	b.probing = false
}

// Reset returns the breaker to its initial closed state.
func (b *Breaker) Reset() {
	b.RecordSuccess()
}

// Remaining returns the cooldown left at now, or zero.
func (b *Breaker) Remaining(now time.Time) time.Duration {
	if b.state != domain.CircuitOpen {
		return 0
	}
	return b.remaining(now)
}

func (b *Breaker) remaining(now time.Time) time.Duration {
	left := b.opts.Cooldown - now.Sub(b.trippedAt)
	if left < 0 {
		return 0
	}
	return left
}

// State returns a point-in-time view.
func (b *Breaker) State() domain.CircuitBreakerState {
	return domain.CircuitBreakerState{
		State:               b.state,
		ConsecutiveFailures: b.failures,
		TrippedAt:           b.trippedAt,
	}
}
