package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// NewDeviceID returns a fresh random device id.
func NewDeviceID() string { return uuid.NewString() }

// MemoryDeviceStore keeps the device id for the life of the process.
type MemoryDeviceStore struct {
	mu sync.Mutex
	id string
}

// Load returns domain.ErrNotFound when nothing is stored.
func (m *MemoryDeviceStore) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id == "" {
		return "", domain.ErrNotFound
	}
	return m.id, nil
}

func (m *MemoryDeviceStore) Save(_ context.Context, id string) error {
	m.mu.Lock()
	m.id = id
	m.mu.Unlock()
	return nil
}

func (m *MemoryDeviceStore) Clear(context.Context) error {
	m.mu.Lock()
	m.id = ""
	m.mu.Unlock()
	return nil
}

// FileDeviceStore keeps the device id in a small text file.
type FileDeviceStore struct {
	Path string
}

func (f FileDeviceStore) Load(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session: read device id: %w", err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", domain.ErrNotFound
	}
	return id, nil
}

// Save writes through a temp file so a crash never leaves a partial id.
func (f FileDeviceStore) Save(_ context.Context, id string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("session: save device id: %w", err)
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(id+"\n"), 0o600); err != nil {
		return fmt.Errorf("session: save device id: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("session: save device id: %w", err)
	}
	return nil
}

func (f FileDeviceStore) Clear(context.Context) error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: clear device id: %w", err)
	}
	return nil
}
