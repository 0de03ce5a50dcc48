package link

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// Handler receives published events.
type Handler func(domain.Event)

// Bus fans engine events out to subscribers. Handlers run synchronously on
// the publishing goroutine in subscription order. A panicking handler is
// recovered, logged and reported to the remaining subscribers as a
// handler_error event.
type Bus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]subscriber
}

type subscriber struct {
	id    uint64
	kinds map[domain.EventKind]struct{}
	fn    Handler
}

func (s subscriber) wants(k domain.EventKind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger:   logger.With(slog.String("component", "link_bus")),
		handlers: make(map[uint64]subscriber),
	}
}

// Subscribe registers fn for the given kinds, or for every kind when none are
// given.
func (b *Bus) Subscribe(fn Handler, kinds ...domain.EventKind) domain.Subscription {
	set := make(map[domain.EventKind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[id] = subscriber{id: id, kinds: set, fn: fn}
	b.mu.Unlock()

	return &busSubscription{bus: b, id: id}
}

// Publish delivers ev to every interested subscriber.
func (b *Bus) Publish(ev domain.Event) {
	for _, s := range b.snapshot() {
		if !s.wants(ev.Kind) {
			continue
		}
		if err := b.deliver(s, ev); err != nil && ev.Kind != domain.EventHandlerError {
			b.Publish(domain.Event{Kind: domain.EventHandlerError, At: ev.At, Err: err.Error()})
		}
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

func (b *Bus) snapshot() []subscriber {
	b.mu.RLock()
	out := make([]subscriber, 0, len(b.handlers))
	for _, s := range b.handlers {
		out = append(out, s)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (b *Bus) deliver(s subscriber, ev domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %s panicked: %v", ev.Kind, r)
			b.logger.Error("event handler panicked",
				slog.String("event", ev.Kind.String()),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	s.fn(ev)
	return nil
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	delete(b.handlers, id)
	b.mu.Unlock()
}

type busSubscription struct {
	bus  *Bus
	id   uint64
	once sync.Once
}

func (s *busSubscription) Close() {
	s.once.Do(func() { s.bus.remove(s.id) })
}

// Scope collects subscriptions and closes them together, newest first.
type Scope struct {
	mu     sync.Mutex
	subs   []domain.Subscription
	closed bool
}

// Add tracks sub. Adding to a closed scope closes sub immediately.
func (s *Scope) Add(sub domain.Subscription) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Close()
		return
	}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
}

// Close closes every tracked subscription in reverse order of addition.
func (s *Scope) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.closed = true
	s.mu.Unlock()

	for i := len(subs) - 1; i >= 0; i-- {
		subs[i].Close()
	}
}
