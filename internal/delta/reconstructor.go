package delta

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// Message is the delta envelope carried by an exchange_data frame.
type Message struct {
	Type       domain.DeltaType `json:"deltaType"`
	Sequence   uint64           `json:"sequence"`
	Data       json.RawMessage  `json:"data,omitempty"`
	Compressed bool             `json:"compressed,omitempty"`
	Timestamp  int64            `json:"timestamp"`
}

// Stats counts what the reconstructor has done since construction. Counters
// survive Reset.
type Stats struct {
	Applied      uint64 `json:"applied"`
	Errors       uint64 `json:"errors"`
	LastSequence uint64 `json:"last_sequence"`
}

// Reconstructor owns the authoritative reconstructed state. It is not safe
// for concurrent use; the link engine drives it from its event loop and
// publishes the immutable snapshots it returns.
type Reconstructor struct {
	now func() time.Time

	snap           domain.Snapshot
	hasBaseline    bool
	refreshPending bool
	applied        uint64
	errors         uint64
}

// NewReconstructor returns an empty reconstructor. now stamps snapshots; nil
// means time.Now.
func NewReconstructor(now func() time.Time) *Reconstructor {
	if now == nil {
		now = time.Now
	}
	r := &Reconstructor{now: now}
	r.Reset()
	return r
}

// Reset clears every collection and the sequence counter. Called whenever a
// new transport session begins.
func (r *Reconstructor) Reset() {
	r.snap = domain.Snapshot{Data: map[string]any{}}
	r.hasBaseline = false
	r.refreshPending = false
}

// Snapshot returns the current state. Callers must not mutate Data.
func (r *Reconstructor) Snapshot() domain.Snapshot { return r.snap }

// LastSequence returns the last applied sequence number.
func (r *Reconstructor) LastSequence() uint64 { return r.snap.Sequence }

// Stats returns the counters.
func (r *Reconstructor) Stats() Stats {
	return Stats{Applied: r.applied, Errors: r.errors, LastSequence: r.snap.Sequence}
}

// MarkRefreshRequested records that a full refresh was asked for. It returns
// false when one is already outstanding, so callers send at most one request
// per gap.
func (r *Reconstructor) MarkRefreshRequested() bool {
	if r.refreshPending {
		return false
	}
	r.refreshPending = true
	return true
}

// Apply validates msg against the current sequence and applies it. On any
// error the state is left untouched and the error counter is incremented.
func (r *Reconstructor) Apply(msg Message) (domain.Snapshot, error) {
	snap, err := r.apply(msg)
	if err != nil {
		r.errors++
		return r.snap, err
	}
	r.snap = snap
	r.applied++
	return snap, nil
}

func (r *Reconstructor) apply(msg Message) (domain.Snapshot, error) {
	switch msg.Type {
	case domain.DeltaFull:
		data, err := r.decode(msg)
		if err != nil {
			return domain.Snapshot{}, err
		}
		r.hasBaseline = true
		r.refreshPending = false
		return domain.Snapshot{Sequence: msg.Sequence, Data: data, UpdatedAt: r.now()}, nil

	case domain.DeltaDelta:
		if !r.hasBaseline {
			return domain.Snapshot{}, fmt.Errorf("delta: seq %d: %w", msg.Sequence, domain.ErrNoBaseline)
		}
		last := r.snap.Sequence
		switch {
		case msg.Sequence <= last:
			return domain.Snapshot{}, fmt.Errorf("delta: seq %d after %d: %w", msg.Sequence, last, domain.ErrStaleSequence)
		case msg.Sequence != last+1:
			return domain.Snapshot{}, fmt.Errorf("delta: seq %d after %d: %w", msg.Sequence, last, domain.ErrSequenceGap)
		}
		patch, err := r.decode(msg)
		if err != nil {
			return domain.Snapshot{}, err
		}
		return domain.Snapshot{Sequence: msg.Sequence, Data: Merge(r.snap.Data, patch), UpdatedAt: r.now()}, nil

	default:
		return domain.Snapshot{}, fmt.Errorf("delta: type %q: %w", msg.Type, domain.ErrUnknownDeltaType)
	}
}

func (r *Reconstructor) decode(msg Message) (map[string]any, error) {
	raw := []byte(msg.Data)
	if msg.Compressed {
		plain, err := Decompress(msg.Data)
		if err != nil {
			return nil, err
		}
		tree, err := decodeObject(plain)
		if err != nil {
			return nil, fmt.Errorf("delta: decompressed payload: %v: %w", err, domain.ErrDecompress)
		}
		return tree, nil
	}
	tree, err := decodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("delta: data: %v: %w", err, domain.ErrMalformedFrame)
	}
	return tree, nil
}

// decodeObject parses a JSON object keeping numbers as json.Number so large
// integer ids survive. Absent or null data is an empty object.
func decodeObject(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return tree, nil
}

// IsRefreshFault reports whether err should be answered with a full refresh
// request while the connection stays up.
func IsRefreshFault(err error) bool {
	return errors.Is(err, domain.ErrSequenceGap) ||
		errors.Is(err, domain.ErrStaleSequence) ||
		errors.Is(err, domain.ErrNoBaseline) ||
		errors.Is(err, domain.ErrUnknownCodec) ||
		errors.Is(err, domain.ErrDecompress)
}

// IsProtocolFault reports whether err means the stream itself cannot be
// trusted and the connection must be torn down.
func IsProtocolFault(err error) bool {
	return errors.Is(err, domain.ErrMalformedFrame) ||
		errors.Is(err, domain.ErrUnknownDeltaType)
}
