package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// ObjectMeta travels with an archived snapshot object. ContentType and
// ContentEncoding become the object's HTTP headers; the rest is stored as
// user metadata.
type ObjectMeta struct {
	ContentType     string
	ContentEncoding string
	DeviceID        string
	Sequence        uint64
	CapturedAt      time.Time
}

// BlobWriter uploads archived snapshots. Implementations pick single or
// multipart upload by size; meta is applied on either path.
type BlobWriter interface {
	Upload(ctx context.Context, key string, body []byte, meta ObjectMeta) error
}

// BlobReader reads and prunes archived snapshots.
type BlobReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectMeta, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	// Delete removes keys and returns how many were removed. Missing keys
	// count as removed.
	Delete(ctx context.Context, keys ...string) (int, error)
}
