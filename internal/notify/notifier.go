// Package notify alerts operators about link conditions that need a human,
// such as exhausted reconnects, a deactivated session or a logout. Alerts are
// dispatched to every registered sender (Telegram, Discord) and filtered by
// event name.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It maintains a set
// of allowed event types; Notify only forwards messages whose event type is in
// the allowed set, while NotifyAll bypasses the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice will be forwarded by Notify.
// If events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification to all senders only if the event type is in the
// allowed list. If no events were configured (empty list), all events pass.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	// If specific events were configured, filter.
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// NotifyEvent formats ev and sends it through Notify under the event's name.
func (n *Notifier) NotifyEvent(ctx context.Context, deviceID string, ev domain.Event) error {
	title, message := Format(deviceID, ev)
	return n.Notify(ctx, ev.Kind.String(), title, message)
}

// Alertable reports whether ev is worth paging someone for.
func Alertable(ev domain.Event) bool {
	return ev.Terminal() || ev.Kind == domain.EventCircuitOpen
}

// Format renders ev as a title and a plain-text body.
func Format(deviceID string, ev domain.Event) (string, string) {
	var title string
	switch ev.Kind {
	case domain.EventMaxReconnectAttempts:
		title = "simlink: reconnect attempts exhausted"
	case domain.EventSessionDeactivated, domain.EventDeviceIDInvalidated:
		title = "simlink: session deactivated"
	case domain.EventLoggedOut:
		title = "simlink: logged out"
	case domain.EventCircuitOpen:
		title = "simlink: circuit open"
	default:
		title = "simlink: " + ev.Kind.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "device: %s\n", deviceID)
	if !ev.At.IsZero() {
		fmt.Fprintf(&b, "at: %s\n", ev.At.UTC().Format(time.RFC3339))
	}
	if ev.MaxAttempts > 0 {
		fmt.Fprintf(&b, "attempts: %d/%d\n", ev.Attempt, ev.MaxAttempts)
	}
	if ev.Remaining > 0 {
		fmt.Fprintf(&b, "cooldown: %s\n", ev.Remaining)
	}
	if ev.Reason != "" {
		fmt.Fprintf(&b, "reason: %s\n", ev.Reason)
	}
	if ev.Err != "" {
		fmt.Fprintf(&b, "error: %s\n", ev.Err)
	}
	return title, strings.TrimRight(b.String(), "\n")
}

// NotifyAll sends a notification to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned as a combined error; a single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
