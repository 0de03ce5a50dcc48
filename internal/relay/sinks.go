package relay

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/simlink/internal/domain"
	"github.com/alanyoungcy/simlink/internal/notify"
)

// DeviceFunc returns the device id events are attributed to.
type DeviceFunc func() string

// EventPublisher is satisfied by the Redis signal bus.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev domain.Event) error
}

// BusSink republishes every event.
type BusSink struct {
	Bus EventPublisher
}

func (BusSink) Name() string { return "bus" }

func (s BusSink) Handle(ctx context.Context, ev domain.Event) error {
	return s.Bus.PublishEvent(ctx, ev)
}

// CacheSink keeps the latest connection and state snapshots in the cache.
type CacheSink struct {
	Cache  domain.SnapshotCache
	Device DeviceFunc
}

func (CacheSink) Name() string { return "cache" }

func (s CacheSink) Handle(ctx context.Context, ev domain.Event) error {
	switch {
	case ev.Kind == domain.EventStateChange && ev.Connection != nil:
		return s.Cache.SetConnection(ctx, s.Device(), *ev.Connection)
	case ev.Kind == domain.EventDataUpdated && ev.Snapshot != nil:
		return s.Cache.SetSnapshot(ctx, s.Device(), *ev.Snapshot)
	}
	return nil
}

// JournalSink appends link lifecycle events to the journal. Data updates and
// heartbeat misses are too chatty to keep.
type JournalSink struct {
	Store  domain.JournalStore
	Device DeviceFunc
	// Status reports the overall status at the time of the event.
	Status func() domain.Status
}

func (JournalSink) Name() string { return "journal" }

func (s JournalSink) Handle(ctx context.Context, ev domain.Event) error {
	switch ev.Kind {
	case domain.EventDataUpdated, domain.EventHeartbeatTimeout:
		return nil
	}
	entry := domain.JournalEntry{
		DeviceID:  s.Device(),
		Event:     ev.Kind.String(),
		Detail:    journalDetail(ev),
		CreatedAt: ev.At,
	}
	if ev.Connection != nil {
		entry.Status = ev.Connection.Status
	} else if s.Status != nil {
		entry.Status = s.Status()
	}
	if err := s.Store.Append(ctx, entry); err != nil {
		return fmt.Errorf("relay: journal: %w", err)
	}
	return nil
}

func journalDetail(ev domain.Event) map[string]any {
	d := map[string]any{}
	if ev.Code != 0 {
		d["code"] = ev.Code
		d["was_clean"] = ev.WasClean
	}
	if ev.Reason != "" {
		d["reason"] = ev.Reason
	}
	if ev.Attempt != 0 {
		d["attempt"] = ev.Attempt
	}
	if ev.MaxAttempts != 0 {
		d["max_attempts"] = ev.MaxAttempts
	}
	if ev.Delay != 0 {
		d["delay_ms"] = ev.Delay.Milliseconds()
	}
	if ev.Remaining != 0 {
		d["remaining_ms"] = ev.Remaining.Milliseconds()
	}
	if ev.Connection != nil {
		d["quality"] = string(ev.Connection.Quality)
		d["circuit"] = string(ev.Connection.Circuit)
		d["recovery_attempt"] = ev.Connection.RecoveryAttempt
		if ev.Connection.PodName != "" {
			d["pod"] = ev.Connection.PodName
		}
	}
	if ev.Binding != nil {
		d["session_id"] = ev.Binding.SessionID
		d["pod"] = ev.Binding.PodName
	}
	if ev.PreviousPod != "" {
		d["previous_pod"] = ev.PreviousPod
	}
	if ev.Err != "" {
		d["error"] = ev.Err
	}
	return d
}

// NotifySink pages operators for terminal conditions and an open circuit.
type NotifySink struct {
	Notifier *notify.Notifier
	Device   DeviceFunc
}

func (NotifySink) Name() string { return "notify" }

func (s NotifySink) Handle(ctx context.Context, ev domain.Event) error {
	if !notify.Alertable(ev) {
		return nil
	}
	return s.Notifier.NotifyEvent(ctx, s.Device(), ev)
}

// FuncSink adapts a function to a Sink.
type FuncSink struct {
	SinkName string
	Fn       func(ctx context.Context, ev domain.Event) error
}

func (f FuncSink) Name() string { return f.SinkName }

func (f FuncSink) Handle(ctx context.Context, ev domain.Event) error { return f.Fn(ctx, ev) }
