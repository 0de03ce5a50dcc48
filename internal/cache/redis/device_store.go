package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// DeviceStore implements domain.DeviceStore under a single key so several
// hosts sharing a Redis keep one device identity.
type DeviceStore struct {
	rdb *redis.Client
	key string
}

// NewDeviceStore creates a DeviceStore keyed by name, e.g. "default".
func NewDeviceStore(c *Client, name string) *DeviceStore {
	return &DeviceStore{rdb: c.Underlying(), key: c.Key("device:" + name)}
}

// Load returns the stored id or domain.ErrNotFound.
func (ds *DeviceStore) Load(ctx context.Context) (string, error) {
	id, err := ds.rdb.Get(ctx, ds.key).Result()
	if errors.Is(err, redis.Nil) || (err == nil && id == "") {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis: load device id: %w", err)
	}
	return id, nil
}

// Save stores id without expiry.
func (ds *DeviceStore) Save(ctx context.Context, id string) error {
	if err := ds.rdb.Set(ctx, ds.key, id, 0).Err(); err != nil {
		return fmt.Errorf("redis: save device id: %w", err)
	}
	return nil
}

// Clear removes the stored id.
func (ds *DeviceStore) Clear(ctx context.Context) error {
	if err := ds.rdb.Del(ctx, ds.key).Err(); err != nil {
		return fmt.Errorf("redis: clear device id: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.DeviceStore = (*DeviceStore)(nil)
