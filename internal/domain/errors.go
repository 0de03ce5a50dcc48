package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrAuthMissing   = errors.New("auth token missing")
	ErrNotConnected  = errors.New("not connected")
	ErrLockHeld      = errors.New("lock already held")
	ErrCircuitOpen   = errors.New("circuit breaker open")
	ErrDisposed      = errors.New("engine disposed")
	ErrDeactivated   = errors.New("session deactivated")
	ErrLoggedOut     = errors.New("logged out")
	ErrMaxReconnects = errors.New("max reconnect attempts reached")

	// Delta faults. Every one of these results in a full refresh request.
	ErrSequenceGap      = errors.New("delta sequence gap")
	ErrStaleSequence    = errors.New("stale delta sequence")
	ErrNoBaseline       = errors.New("delta received before full snapshot")
	ErrUnknownCodec     = errors.New("unknown compression algorithm")
	ErrDecompress       = errors.New("decompression failed")
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrUnknownDeltaType = errors.New("unknown delta type")
)
