package domain

import "time"

// Status is the externally visible overall connection status.
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusConnected    Status = "CONNECTED"
	StatusRecovering   Status = "RECOVERING"
)

// Quality grades the link from heartbeat latency.
type Quality string

const (
	QualityGood     Quality = "GOOD"
	QualityDegraded Quality = "DEGRADED"
	QualityPoor     Quality = "POOR"
	QualityUnknown  Quality = "UNKNOWN"
)

// CircuitState is the circuit breaker position.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// CircuitBreakerState is a point-in-time view of the breaker.
type CircuitBreakerState struct {
	State               CircuitState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	TrippedAt           time.Time    `json:"tripped_at,omitempty"`
}

// Connection is the snapshot published with every state_change event. It is
// produced only by the connection state machine; Status and Quality are
// always derived together.
type Connection struct {
	Status             Status       `json:"status"`
	Quality            Quality      `json:"quality"`
	TransportStatus    Status       `json:"transport_status"`
	RecoveryAttempt    int          `json:"recovery_attempt"`
	LastHeartbeatTime  time.Time    `json:"last_heartbeat_time,omitempty"`
	HeartbeatLatencyMs int64        `json:"heartbeat_latency_ms"`
	Circuit            CircuitState `json:"circuit"`
	SimulatorStatus    string       `json:"simulator_status,omitempty"`
	PodName            string       `json:"pod_name,omitempty"`
	Deactivated        bool         `json:"deactivated"`
}

// SessionBinding identifies the server-side session the link is bound to.
// A PodName change while SessionID is stable is a pod transfer.
type SessionBinding struct {
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
	PodName   string `json:"pod_name"`
}

// Credentials are the parameters needed to open or resume a channel.
type Credentials struct {
	SessionID   string
	DeviceID    string
	CSRFToken   string
	AccessToken string
}

// String returns the quality name.
func (q Quality) String() string { return string(q) }
