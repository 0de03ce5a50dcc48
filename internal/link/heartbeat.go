package link

import (
	"time"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// Thresholds grade heartbeat latency into a quality.
type Thresholds struct {
	Good     time.Duration
	Degraded time.Duration
}

// Grade classifies latency. A negative latency means none was measured.
func (t Thresholds) Grade(latency time.Duration) domain.Quality {
	switch {
	case latency < 0:
		return domain.QualityUnknown
	case latency <= t.Good:
		return domain.QualityGood
	case latency <= t.Degraded:
		return domain.QualityDegraded
	default:
		return domain.QualityPoor
	}
}

// HeartbeatOptions configures the heartbeat monitor.
type HeartbeatOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	// DeadAfter is the number of consecutive unanswered probes that mark
	// the connection dead.
	DeadAfter int
}

// Heartbeat probes an open connection every Interval and waits Timeout for
// the matching ack. An unanswered probe is reported through onTimeout and
// immediately re-sent; DeadAfter consecutive misses call onDead instead.
type Heartbeat struct {
	opts  HeartbeatOptions
	clock domain.Clock
	post  func(func())

	send      func(timestamp int64) bool
	onTimeout func(misses int)
	onDead    func()

	running     bool
	gen         uint64
	next        domain.Timer
	deadline    domain.Timer
	outstanding int64
	sentAt      time.Time
	misses      int
}

// NewHeartbeat builds a stopped monitor.
func NewHeartbeat(opts HeartbeatOptions, clock domain.Clock, post func(func()),
	send func(int64) bool, onTimeout func(int), onDead func()) *Heartbeat {
	if opts.DeadAfter < 1 {
		opts.DeadAfter = 2
	}
	return &Heartbeat{
		opts:      opts,
		clock:     clock,
		post:      post,
		send:      send,
		onTimeout: onTimeout,
		onDead:    onDead,
	}
}

// Start begins probing. The first probe goes out after one Interval.
func (h *Heartbeat) Start() {
	h.Stop()
	h.running = true
	h.armNext(h.opts.Interval)
}

// Stop cancels every timer and forgets the outstanding probe.
func (h *Heartbeat) Stop() {
	h.running = false
	h.gen++
	if h.next != nil {
		h.next.Stop()
		h.next = nil
	}
	if h.deadline != nil {
		h.deadline.Stop()
		h.deadline = nil
	}
	h.outstanding = 0
	h.misses = 0
}

// Running reports whether the monitor is active.
func (h *Heartbeat) Running() bool { return h.running }

// Ack matches an acknowledgement against the outstanding probe. It returns
// the round-trip latency and false when the ack echoes no outstanding probe.
func (h *Heartbeat) Ack(clientTimestamp int64) (time.Duration, bool) {
	if !h.running || h.outstanding == 0 || clientTimestamp != h.outstanding {
		return 0, false
	}
	now := h.clock.Now()
	latency := now.Sub(time.UnixMilli(clientTimestamp))
	h.outstanding = 0
	h.misses = 0
	if h.deadline != nil {
		h.deadline.Stop()
		h.deadline = nil
	}

	wait := h.opts.Interval - now.Sub(h.sentAt)
	if wait < 0 {
		wait = 0
	}
	h.armNext(wait)
	return latency, true
}

func (h *Heartbeat) armNext(d time.Duration) {
	gen := h.gen
	h.next = h.clock.AfterFunc(d, func() {
		h.post(func() {
			if h.gen != gen || !h.running {
				return
			}
			h.next = nil
			h.probe()
		})
	})
}

func (h *Heartbeat) probe() {
	now := h.clock.Now()
	ts := now.UnixMilli()
	h.outstanding = ts
	h.sentAt = now
	h.send(ts)

	gen := h.gen
	h.deadline = h.clock.AfterFunc(h.opts.Timeout, func() {
		h.post(func() {
			if h.gen != gen || !h.running || h.outstanding != ts {
				return
			}
			h.deadline = nil
			h.expire()
		})
	})
}

func (h *Heartbeat) expire() {
	h.misses++
	if h.misses >= h.opts.DeadAfter {
		h.Stop()
		h.onDead()
		return
	}
	h.onTimeout(h.misses)
	if h.running {
		h.probe()
	}
}
