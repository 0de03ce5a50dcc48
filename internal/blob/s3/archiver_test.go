package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/simlink/internal/domain"
	"github.com/alanyoungcy/simlink/internal/testutil"
)

// memBlobs is an in-memory object store.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]domain.ObjectMeta
	mtime   map[string]time.Time
	now     time.Time
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, meta: map[string]domain.ObjectMeta{}, mtime: map[string]time.Time{}}
}

func (m *memBlobs) Upload(_ context.Context, key string, body []byte, meta domain.ObjectMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = bytes.Clone(body)
	m.meta[key] = meta
	m.mtime[key] = m.now
	return nil
}

func (m *memBlobs) Get(_ context.Context, key string) (io.ReadCloser, domain.ObjectMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, domain.ObjectMeta{}, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), m.meta[key], nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for k, b := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(b)), LastModified: m.mtime[k]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memBlobs) Delete(_ context.Context, keys ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
		delete(m.meta, k)
		delete(m.mtime, k)
	}
	return len(keys), nil
}

type memIndex struct {
	recs []domain.ArchiveRecord
	err  error
}

func (m *memIndex) Record(_ context.Context, rec domain.ArchiveRecord) error {
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memIndex) Latest(context.Context, string) (domain.ArchiveRecord, error) {
	if len(m.recs) == 0 {
		return domain.ArchiveRecord{}, domain.ErrNotFound
	}
	return m.recs[len(m.recs)-1], nil
}

func TestArchiveOnceUploadsAndRestores(t *testing.T) {
	blobs := newMemBlobs()
	idx := &memIndex{}
	snap := domain.Snapshot{}
	a := NewArchiver(ArchiverConfig{Prefix: "snapshots/"}, func() (domain.Snapshot, string) { return snap, "dev-1" },
		blobs, blobs, idx, testutil.Logger())
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	a.now = func() time.Time { return now }
	ctx := context.Background()

	_, ok, err := a.ArchiveOnce(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "nothing to archive before the first FULL")

	snap = domain.Snapshot{
		Sequence:  4,
		Data:      map[string]any{"orders": map[string]any{"o1": map[string]any{"qty": json.Number("10")}}},
		UpdatedAt: now,
	}
	rec, ok, err := a.ArchiveOnce(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "snapshots/dev-1/2026/03/04/"+"1772600767000-4.json.gz", rec.ObjectKey)
	assert.Equal(t, []domain.ArchiveRecord{rec}, idx.recs)
	assert.Equal(t, domain.ObjectMeta{
		ContentType:     "application/json",
		ContentEncoding: "gzip",
		DeviceID:        "dev-1",
		Sequence:        4,
		CapturedAt:      now,
	}, blobs.meta[rec.ObjectKey])

	_, ok, err = a.ArchiveOnce(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "unchanged state is skipped")

	got, err := a.Restore(ctx, rec.ObjectKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), got.Sequence)
	assert.Equal(t, json.Number("10"), got.Orders()["o1"].(map[string]any)["qty"])
}

func TestArchiveIndexFailureIsNotFatal(t *testing.T) {
	blobs := newMemBlobs()
	snap := domain.Snapshot{Sequence: 1, Data: map[string]any{}, UpdatedAt: time.Unix(1, 0)}
	a := NewArchiver(ArchiverConfig{Prefix: "s"}, func() (domain.Snapshot, string) { return snap, "d" },
		blobs, blobs, &memIndex{err: errors.New("db down")}, testutil.Logger())

	_, ok, err := a.ArchiveOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, blobs.objects, 1)
}

func TestPruneRemovesOldArchives(t *testing.T) {
	blobs := newMemBlobs()
	snap := domain.Snapshot{Sequence: 1, Data: map[string]any{}}
	a := NewArchiver(ArchiverConfig{Prefix: "s"}, func() (domain.Snapshot, string) { return snap, "d" },
		blobs, blobs, nil, testutil.Logger())
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		blobs.now = base.Add(time.Duration(i) * 24 * time.Hour)
		a.now = func() time.Time { return blobs.now }
		snap.Sequence = uint64(i + 1)
		_, ok, err := a.ArchiveOnce(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, blobs.Upload(ctx, "s/other/x.json.gz", []byte("x"), domain.ObjectMeta{}))

	removed, err := a.Prune(ctx, base.Add(36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Len(t, blobs.objects, 2, "newest archive and other devices are kept")
}

func TestDecodeSnapshotEncodings(t *testing.T) {
	_, err := decodeSnapshot(strings.NewReader("not gzip"), "gzip")
	assert.Error(t, err)

	snap, err := decodeSnapshot(strings.NewReader(`{"sequence":3}`), "identity")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Sequence)

	_, err = decodeSnapshot(strings.NewReader("x"), "br")
	assert.ErrorContains(t, err, "unsupported archive encoding")
}
