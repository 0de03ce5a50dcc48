package link

import (
	"time"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// Inputs are the raw facts the state machine derives the connection from.
// They are only mutated inside StateMachine.Update.
type Inputs struct {
	Transport       domain.Status
	Recovering      bool
	Deactivated     bool
	RecoveryAttempt int
	LastHeartbeat   time.Time
	// Latency is negative until a heartbeat has been measured on the
	// current socket.
	Latency         time.Duration
	Circuit         domain.CircuitState
	SimulatorStatus string
	PodName         string
}

// DefaultInputs is the state of a fresh or manually disconnected link.
func DefaultInputs() Inputs {
	return Inputs{
		Transport: domain.StatusDisconnected,
		Latency:   -1,
		Circuit:   domain.CircuitClosed,
	}
}

// StateMachine owns the published Connection. Status and Quality are always
// computed from Inputs, never set directly.
type StateMachine struct {
	grade   Thresholds
	in      Inputs
	current domain.Connection
}

// NewStateMachine starts in DefaultInputs.
func NewStateMachine(grade Thresholds) *StateMachine {
	m := &StateMachine{grade: grade, in: DefaultInputs()}
	m.current = m.derive()
	return m
}

// Update applies fn to the inputs and recomputes the connection. It reports
// whether the published connection changed.
func (m *StateMachine) Update(fn func(*Inputs)) (domain.Connection, bool) {
	fn(&m.in)
	next := m.derive()
	changed := next != m.current
	m.current = next
	return next, changed
}

// Connection returns the current derived connection.
func (m *StateMachine) Connection() domain.Connection { return m.current }

// Inputs returns a copy of the raw inputs.
func (m *StateMachine) Inputs() Inputs { return m.in }

func (m *StateMachine) derive() domain.Connection {
	status := OverallStatus(m.in.Transport, m.in.Recovering, m.in.Deactivated)
	quality := domain.QualityUnknown
	if status == domain.StatusConnected {
		quality = m.grade.Grade(m.in.Latency)
	}
	var latencyMs int64 = -1
	if m.in.Latency >= 0 {
		latencyMs = m.in.Latency.Milliseconds()
	}
	return domain.Connection{
		Status:             status,
		Quality:            quality,
		TransportStatus:    m.in.Transport,
		RecoveryAttempt:    m.in.RecoveryAttempt,
		LastHeartbeatTime:  m.in.LastHeartbeat,
		HeartbeatLatencyMs: latencyMs,
		Circuit:            m.in.Circuit,
		SimulatorStatus:    m.in.SimulatorStatus,
		PodName:            m.in.PodName,
		Deactivated:        m.in.Deactivated,
	}
}

// OverallStatus folds transport and recovery status into the externally
// visible status. Recovery wins over the raw transport status; a
// deactivated session is always DISCONNECTED.
func OverallStatus(transport domain.Status, recovering, deactivated bool) domain.Status {
	switch {
	case deactivated:
		return domain.StatusDisconnected
	case recovering:
		return domain.StatusRecovering
	default:
		return transport
	}
}
