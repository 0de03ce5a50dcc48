package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// JournalEntry is a single row of the connection journal.
type JournalEntry struct {
	ID        int64
	DeviceID  string
	Event     string
	Status    Status
	Detail    map[string]any
	CreatedAt time.Time
}

// JournalStore persists an append-only log of link events.
type JournalStore interface {
	Append(ctx context.Context, entry JournalEntry) error
	List(ctx context.Context, deviceID string, opts ListOpts) ([]JournalEntry, error)
}

// ArchiveRecord describes one uploaded snapshot object.
type ArchiveRecord struct {
	DeviceID  string
	Sequence  uint64
	ObjectKey string
	SizeBytes int64
	CreatedAt time.Time
}

// ArchiveIndex tracks uploaded snapshot archives.
type ArchiveIndex interface {
	Record(ctx context.Context, rec ArchiveRecord) error
	Latest(ctx context.Context, deviceID string) (ArchiveRecord, error)
}
