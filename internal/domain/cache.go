package domain

import (
	"context"
	"time"
)

// SnapshotCache keeps the latest reconstructed state where other processes
// can read it.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, deviceID string, snap Snapshot) error
	GetSnapshot(ctx context.Context, deviceID string) (Snapshot, error)
	SetConnection(ctx context.Context, deviceID string, conn Connection) error
	GetConnection(ctx context.Context, deviceID string) (Connection, error)
}

// DeviceStore persists the device id across restarts.
type DeviceStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, deviceID string) error
	Clear(ctx context.Context) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter admits at most limit requests per key within window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
