package simulator

import (
	"encoding/json"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// Frame type names used on the wire.
const (
	TypeHeartbeat           = "heartbeat"
	TypeHeartbeatAck        = "heartbeat_ack"
	TypeExchangeData        = "exchange_data"
	TypeDeviceIDInvalidated = "device_id_invalidated"
	TypeSessionInfo         = "session_info"
	TypeFullRefreshRequest  = "full_refresh_request"
)

// InboundMessage is the union of every field an inbound frame may carry.
// Which fields are meaningful depends on Type.
type InboundMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`

	// exchange_data
	Sequence   uint64           `json:"sequence,omitempty"`
	DeltaType  domain.DeltaType `json:"deltaType,omitempty"`
	Data       json.RawMessage  `json:"data,omitempty"`
	Compressed bool             `json:"compressed,omitempty"`

	// heartbeat_ack
	DeviceIDValid   *bool  `json:"deviceIdValid,omitempty"`
	SimulatorStatus string `json:"simulatorStatus,omitempty"`
	ClientTimestamp int64  `json:"clientTimestamp,omitempty"`

	// heartbeat_ack, session_info
	PodName   string `json:"podName,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	// device_id_invalidated
	Reason string `json:"reason,omitempty"`
}

// HeartbeatMessage is the outbound liveness probe.
type HeartbeatMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	DeviceID  string `json:"deviceId"`
}

// FullRefreshRequest asks the server to resend a FULL snapshot.
type FullRefreshRequest struct {
	Type         string `json:"type"`
	LastSequence uint64 `json:"lastSequence"`
	DeviceID     string `json:"deviceId"`
	Timestamp    int64  `json:"timestamp"`
}

// NewHeartbeat builds a heartbeat probe.
func NewHeartbeat(timestamp int64, deviceID string) HeartbeatMessage {
	return HeartbeatMessage{Type: TypeHeartbeat, Timestamp: timestamp, DeviceID: deviceID}
}

// NewFullRefreshRequest builds a refresh request.
func NewFullRefreshRequest(lastSequence uint64, deviceID string, timestamp int64) FullRefreshRequest {
	return FullRefreshRequest{
		Type:         TypeFullRefreshRequest,
		LastSequence: lastSequence,
		DeviceID:     deviceID,
		Timestamp:    timestamp,
	}
}
