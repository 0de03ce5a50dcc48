package link

import (
	"math"
	"time"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// BackoffOptions configures the reconnection scheduler.
type BackoffOptions struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	// JitterFraction adds up to this fraction of the delay at random.
	JitterFraction float64
}

// BackoffDelay returns the delay for attempt n (1-based):
// min(base*2^(n-1), max) plus jitter, never more than max. r must be in [0,1).
func BackoffDelay(opts BackoffOptions, attempt int, r float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(opts.BaseDelay) * math.Pow(2, float64(attempt-1))
	if opts.MaxDelay > 0 && d > float64(opts.MaxDelay) {
		d = float64(opts.MaxDelay)
	}
	if opts.JitterFraction > 0 {
		d += d * opts.JitterFraction * r
	}
	if opts.MaxDelay > 0 && d > float64(opts.MaxDelay) {
		d = float64(opts.MaxDelay)
	}
	return time.Duration(d)
}

// Schedule is the outcome of a Scheduler.Schedule call.
type Schedule struct {
	Attempt   int
	Delay     time.Duration
	Pending   bool // a retry was already armed; nothing changed
	Exhausted bool // MaxAttempts reached; nothing armed
}

// Scheduler arms at most one reconnect timer at a time and counts attempts
// up to MaxAttempts. Timer callbacks are posted through post so fire always
// runs on the engine's task queue.
type Scheduler struct {
	opts  BackoffOptions
	clock domain.Clock
	rand  func() float64
	post  func(func())

	attempt   int
	exhausted bool
	timer     domain.Timer
	gen       uint64
}

// NewScheduler builds a scheduler. rand supplies jitter in [0,1).
func NewScheduler(opts BackoffOptions, clock domain.Clock, rand func() float64, post func(func())) *Scheduler {
	return &Scheduler{opts: opts, clock: clock, rand: rand, post: post}
}

// Schedule arms the next attempt. The delay is at least minDelay, which lets
// the caller wait out a breaker cooldown.
func (s *Scheduler) Schedule(minDelay time.Duration, fire func()) Schedule {
	if s.timer != nil {
		return Schedule{Attempt: s.attempt, Pending: true}
	}
	if s.exhausted || s.attempt >= s.opts.MaxAttempts {
		s.exhausted = true
		return Schedule{Attempt: s.attempt, Exhausted: true}
	}
	s.attempt++
	d := BackoffDelay(s.opts, s.attempt, s.rand())
	if d < minDelay {
		d = minDelay
	}
	s.arm(d, fire)
	return Schedule{Attempt: s.attempt, Delay: d}
}

// Defer re-arms without consuming an attempt. Used when an attempt was
// refused before reaching the transport.
func (s *Scheduler) Defer(d time.Duration, fire func()) bool {
	if s.timer != nil {
		return false
	}
	s.arm(d, fire)
	return true
}

func (s *Scheduler) arm(d time.Duration, fire func()) {
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(d, func() {
		s.post(func() {
			if s.gen != gen || s.timer == nil {
				return
			}
			s.timer = nil
			fire()
		})
	})
}

// Cancel disarms a pending timer, keeping the attempt count.
func (s *Scheduler) Cancel() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Reset cancels and clears the attempt count, including exhaustion.
func (s *Scheduler) Reset() {
	s.Cancel()
	s.attempt = 0
	s.exhausted = false
}

// Attempt returns the number of attempts scheduled since the last Reset.
func (s *Scheduler) Attempt() int { return s.attempt }

// Pending reports whether a timer is armed.
func (s *Scheduler) Pending() bool { return s.timer != nil }

// Exhausted reports whether MaxAttempts was reached.
func (s *Scheduler) Exhausted() bool { return s.exhausted }
