package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// snapshotTTL expires cached state for devices that stopped streaming.
const snapshotTTL = 24 * time.Hour

// SnapshotCache implements domain.SnapshotCache with one JSON string per
// device for the reconstructed state and one for the connection snapshot.
type SnapshotCache struct {
	c   *Client
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{c: c, rdb: c.Underlying()}
}

func (sc *SnapshotCache) snapshotKey(deviceID string) string {
	return sc.c.Key("snapshot:" + deviceID)
}

func (sc *SnapshotCache) connectionKey(deviceID string) string {
	return sc.c.Key("connection:" + deviceID)
}

// SetSnapshot stores snap as the latest state for deviceID.
func (sc *SnapshotCache) SetSnapshot(ctx context.Context, deviceID string, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", deviceID, err)
	}
	if err := sc.rdb.Set(ctx, sc.snapshotKey(deviceID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", deviceID, err)
	}
	return nil
}

// GetSnapshot returns the cached state. Numbers decode as json.Number, the
// same way the reconstructor produces them. It returns domain.ErrNotFound
// when nothing is cached.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context, deviceID string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := sc.get(ctx, sc.snapshotKey(deviceID), &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: get snapshot %s: %w", deviceID, err)
	}
	return snap, nil
}

// SetConnection stores the latest connection snapshot for deviceID.
func (sc *SnapshotCache) SetConnection(ctx context.Context, deviceID string, conn domain.Connection) error {
	data, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("redis: marshal connection %s: %w", deviceID, err)
	}
	if err := sc.rdb.Set(ctx, sc.connectionKey(deviceID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set connection %s: %w", deviceID, err)
	}
	return nil
}

// GetConnection returns the cached connection snapshot or domain.ErrNotFound.
func (sc *SnapshotCache) GetConnection(ctx context.Context, deviceID string) (domain.Connection, error) {
	var conn domain.Connection
	if err := sc.get(ctx, sc.connectionKey(deviceID), &conn); err != nil {
		return domain.Connection{}, fmt.Errorf("redis: get connection %s: %w", deviceID, err)
	}
	return conn, nil
}

func (sc *SnapshotCache) get(ctx context.Context, key string, v any) error {
	data, err := sc.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
