package simulator

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/simlink/internal/delta"
	"github.com/alanyoungcy/simlink/internal/domain"
)

// FrameKind is the closed set of inbound frames the link understands.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameHeartbeatAck
	FrameExchangeData
	FrameDeviceIDInvalidated
	FrameSessionInfo
)

// HeartbeatAck is the server's answer to a heartbeat probe.
type HeartbeatAck struct {
	ClientTimestamp int64
	// DeviceIDValid is nil when the server did not say.
	DeviceIDValid   *bool
	SimulatorStatus string
	PodName         string
	SessionID       string
}

// SessionInfo reports which session and pod serve this connection.
type SessionInfo struct {
	SessionID string
	PodName   string
}

// Frame is a decoded inbound frame. Exactly one payload field is set for
// known kinds.
type Frame struct {
	Kind FrameKind
	Type string

	Ack     *HeartbeatAck
	Delta   *delta.Message
	Session *SessionInfo
	Reason  string
}

// ParseFrame decodes a raw inbound frame. Undecodable JSON or a missing type
// is domain.ErrMalformedFrame; an unrecognised type is FrameUnknown with no
// error.
func ParseFrame(raw []byte) (Frame, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Frame{}, fmt.Errorf("simulator: parse frame: %v: %w", err, domain.ErrMalformedFrame)
	}
	if msg.Type == "" {
		return Frame{}, fmt.Errorf("simulator: frame without type: %w", domain.ErrMalformedFrame)
	}

	f := Frame{Type: msg.Type}
	switch msg.Type {
	case TypeHeartbeatAck:
		f.Kind = FrameHeartbeatAck
		f.Ack = &HeartbeatAck{
			ClientTimestamp: msg.ClientTimestamp,
			DeviceIDValid:   msg.DeviceIDValid,
			SimulatorStatus: msg.SimulatorStatus,
			PodName:         msg.PodName,
			SessionID:       msg.SessionID,
		}
	case TypeExchangeData:
		f.Kind = FrameExchangeData
		f.Delta = &delta.Message{
			Type:       msg.DeltaType,
			Sequence:   msg.Sequence,
			Data:       msg.Data,
			Compressed: msg.Compressed,
			Timestamp:  msg.Timestamp,
		}
	case TypeDeviceIDInvalidated:
		f.Kind = FrameDeviceIDInvalidated
		f.Reason = msg.Reason
	case TypeSessionInfo:
		f.Kind = FrameSessionInfo
		f.Session = &SessionInfo{SessionID: msg.SessionID, PodName: msg.PodName}
	default:
		f.Kind = FrameUnknown
	}
	return f, nil
}
