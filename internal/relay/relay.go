// Package relay carries engine events off the engine's goroutine to slower
// consumers: the Redis bus, the snapshot cache, the journal and notifiers.
package relay

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// sinkTimeout bounds a single sink call.
const sinkTimeout = 5 * time.Second

// Sink consumes relayed events. Handle runs on the relay goroutine, one event
// at a time, in publish order.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev domain.Event) error
}

// Relay buffers events and hands them to every sink. Enqueue never blocks;
// when the buffer is full the event is dropped and counted.
type Relay struct {
	events  chan domain.Event
	sinks   []Sink
	logger  *slog.Logger
	dropped atomic.Uint64
}

// New creates a relay with room for size pending events.
func New(size int, logger *slog.Logger, sinks ...Sink) *Relay {
	return &Relay{
		events: make(chan domain.Event, size),
		sinks:  sinks,
		logger: logger.With(slog.String("component", "relay")),
	}
}

// Enqueue queues ev for delivery. It is safe to call from event handlers.
func (r *Relay) Enqueue(ev domain.Event) {
	select {
	case r.events <- ev:
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("relay buffer full, dropping event",
			slog.String("event", ev.Kind.String()),
			slog.Uint64("dropped_total", n),
		)
	}
}

// Dropped returns how many events were discarded so far.
func (r *Relay) Dropped() uint64 { return r.dropped.Load() }

// Run delivers events until ctx is cancelled, then flushes what is already
// buffered.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-r.events:
			r.deliver(ctx, ev)
		case <-ctx.Done():
			r.flush()
			return nil
		}
	}
}

func (r *Relay) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*sinkTimeout)
	defer cancel()
	for {
		select {
		case ev := <-r.events:
			r.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (r *Relay) deliver(ctx context.Context, ev domain.Event) {
	for _, s := range r.sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := s.Handle(sctx, ev)
		cancel()
		if err != nil {
			r.logger.Warn("sink failed",
				slog.String("sink", s.Name()),
				slog.String("event", ev.Kind.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}
