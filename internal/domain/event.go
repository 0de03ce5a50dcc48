package domain

import "time"

// EventKind enumerates every event the link engine publishes. Consumers
// dispatch on it with a switch; there are no free-form event names.
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventReconnecting
	EventCircuitOpen
	EventCircuitHalfOpen
	EventCircuitClosed
	EventHeartbeatTimeout
	EventMaxReconnectAttempts
	EventDeviceIDInvalidated
	EventStateChange
	EventDataUpdated
	EventFullRefreshRequested
	EventProtocolError
	EventAuthError
	EventLoggedOut
	EventPodTransfer
	EventSessionDeactivated
	EventHandlerError
)

var eventNames = map[EventKind]string{
	EventConnected:            "connected",
	EventDisconnected:         "disconnected",
	EventReconnecting:         "reconnecting",
	EventCircuitOpen:          "circuit_open",
	EventCircuitHalfOpen:      "circuit_half_open",
	EventCircuitClosed:        "circuit_closed",
	EventHeartbeatTimeout:     "heartbeat_timeout",
	EventMaxReconnectAttempts: "max_reconnect_attempts",
	EventDeviceIDInvalidated:  "device_id_invalidated",
	EventStateChange:          "state_change",
	EventDataUpdated:          "data_updated",
	EventFullRefreshRequested: "full_refresh_requested",
	EventProtocolError:        "protocol_error",
	EventAuthError:            "auth_error",
	EventLoggedOut:            "logged_out",
	EventPodTransfer:          "pod_transfer",
	EventSessionDeactivated:   "session_deactivated",
	EventHandlerError:         "handler_error",
}

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is a single published engine event. Only the fields relevant to Kind
// are populated.
type Event struct {
	Kind EventKind `json:"kind"`
	At   time.Time `json:"at"`

	// disconnected
	Code     int    `json:"code,omitempty"`
	Reason   string `json:"reason,omitempty"`
	WasClean bool   `json:"was_clean,omitempty"`

	// reconnecting, max_reconnect_attempts
	Attempt     int           `json:"attempt,omitempty"`
	MaxAttempts int           `json:"max_attempts,omitempty"`
	Delay       time.Duration `json:"delay,omitempty"`

	// circuit_open
	Remaining time.Duration `json:"remaining,omitempty"`

	// state_change
	Connection *Connection `json:"connection,omitempty"`

	// data_updated
	Snapshot *Snapshot `json:"snapshot,omitempty"`

	// pod_transfer, session binding changes
	Binding     *SessionBinding `json:"binding,omitempty"`
	PreviousPod string          `json:"previous_pod,omitempty"`

	// full_refresh_requested, protocol_error, auth_error, handler_error
	Err string `json:"error,omitempty"`
}

// Terminal reports whether the event ends the link until a consumer acts.
func (e Event) Terminal() bool {
	switch e.Kind {
	case EventMaxReconnectAttempts, EventDeviceIDInvalidated, EventSessionDeactivated, EventLoggedOut:
		return true
	default:
		return false
	}
}

// Subscription is the handle returned by every subscribe call. Close stops
// delivery and is safe to call more than once.
type Subscription interface {
	Close()
}
