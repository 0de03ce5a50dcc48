package domain

// TransportEventKind enumerates what a transport client reports.
type TransportEventKind int

const (
	TransportConnected TransportEventKind = iota + 1
	TransportDisconnected
	TransportMessage
	TransportError
)

// TransportEvent is emitted by a transport client for one socket instance.
type TransportEvent struct {
	Kind     TransportEventKind
	SocketID uint64

	// Disconnected
	Code     int
	Reason   string
	WasClean bool

	// Message
	Data []byte

	// Error
	Err error
}

// WebSocket close codes used by the link.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseAbnormal      = 1006
	CloseHeartbeatDead = 4000
	CloseDeactivated   = 4001
	CloseProtocolError = 4002
)
