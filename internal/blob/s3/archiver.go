package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// Archives are gzip-compressed JSON.
const (
	archiveContentType     = "application/json"
	archiveContentEncoding = "gzip"
)

// SnapshotSource returns the current reconstructed state and the device it
// belongs to.
type SnapshotSource func() (snap domain.Snapshot, deviceID string)

// ArchiverConfig controls where and how often snapshots are archived.
type ArchiverConfig struct {
	Prefix    string
	Interval  time.Duration
	Retention time.Duration
}

// Archiver periodically uploads the reconstructed state as gzip-compressed
// JSON and prunes archives past the retention window. Unchanged state is
// not uploaded twice.
type Archiver struct {
	cfg    ArchiverConfig
	source SnapshotSource
	writer domain.BlobWriter
	reader domain.BlobReader
	index  domain.ArchiveIndex
	logger *slog.Logger
	now    func() time.Time

	lastSeq uint64
	lastAt  time.Time
}

// NewArchiver creates an Archiver. index may be nil.
func NewArchiver(cfg ArchiverConfig, source SnapshotSource, writer domain.BlobWriter, reader domain.BlobReader, index domain.ArchiveIndex, logger *slog.Logger) *Archiver {
	return &Archiver{
		cfg:    cfg,
		source: source,
		writer: writer,
		reader: reader,
		index:  index,
		logger: logger.With(slog.String("component", "archiver")),
		now:    time.Now,
	}
}

// Run archives every Interval until ctx is cancelled, then archives once
// more so the final state is kept.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, _, err := a.ArchiveOnce(flushCtx); err != nil {
				a.logger.Warn("final archive failed", slog.String("error", err.Error()))
			}
			return nil
		case <-ticker.C:
			if _, _, err := a.ArchiveOnce(ctx); err != nil {
				a.logger.Warn("archive failed", slog.String("error", err.Error()))
			}
			if a.cfg.Retention > 0 {
				if _, err := a.Prune(ctx, a.now().Add(-a.cfg.Retention)); err != nil {
					a.logger.Warn("prune failed", slog.String("error", err.Error()))
				}
			}
		}
	}
}

// ArchiveOnce uploads the current state. It reports false without error when
// there is no baseline yet or nothing changed since the last upload.
func (a *Archiver) ArchiveOnce(ctx context.Context) (domain.ArchiveRecord, bool, error) {
	snap, deviceID := a.source()
	if snap.Data == nil {
		return domain.ArchiveRecord{}, false, nil
	}
	if snap.Sequence == a.lastSeq && !snap.UpdatedAt.After(a.lastAt) {
		return domain.ArchiveRecord{}, false, nil
	}

	body, err := encodeSnapshot(snap)
	if err != nil {
		return domain.ArchiveRecord{}, false, err
	}

	now := a.now().UTC()
	key := a.objectKey(deviceID, snap.Sequence, now)
	meta := domain.ObjectMeta{
		ContentType:     archiveContentType,
		ContentEncoding: archiveContentEncoding,
		DeviceID:        deviceID,
		Sequence:        snap.Sequence,
		CapturedAt:      snap.UpdatedAt,
	}
	if err := a.writer.Upload(ctx, key, body, meta); err != nil {
		return domain.ArchiveRecord{}, false, fmt.Errorf("s3blob: archive snapshot: %w", err)
	}

	rec := domain.ArchiveRecord{
		DeviceID:  deviceID,
		Sequence:  snap.Sequence,
		ObjectKey: key,
		SizeBytes: int64(len(body)),
		CreatedAt: now,
	}
	if a.index != nil {
		if err := a.index.Record(ctx, rec); err != nil {
			// The object is uploaded; only the index row is missing.
			a.logger.Warn("archive index failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}

	a.lastSeq = snap.Sequence
	a.lastAt = snap.UpdatedAt
	a.logger.Info("snapshot archived",
		slog.String("key", key),
		slog.Uint64("sequence", snap.Sequence),
		slog.Int("bytes", len(body)),
	)
	return rec, true, nil
}

// Prune deletes this device's archives last modified before cutoff and
// returns how many were removed.
func (a *Archiver) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	_, deviceID := a.source()
	infos, err := a.reader.List(ctx, a.devicePrefix(deviceID))
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune: %w", err)
	}
	var stale []string
	for _, info := range infos {
		if info.LastModified.Before(cutoff) {
			stale = append(stale, info.Path)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	removed, err := a.reader.Delete(ctx, stale...)
	if err != nil {
		return removed, fmt.Errorf("s3blob: prune: %w", err)
	}
	a.logger.Info("archives pruned", slog.Int("removed", removed), slog.Time("cutoff", cutoff))
	return removed, nil
}

// Restore downloads and decodes the archive at key.
func (a *Archiver) Restore(ctx context.Context, key string) (domain.Snapshot, error) {
	rc, meta, err := a.reader.Get(ctx, key)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer rc.Close()
	return decodeSnapshot(rc, meta.ContentEncoding)
}

func (a *Archiver) devicePrefix(deviceID string) string {
	return strings.TrimSuffix(a.cfg.Prefix, "/") + "/" + deviceID + "/"
}

// objectKey partitions archives by device and day:
//
//	snapshots/<device>/2026/01/02/<unix-ms>-<sequence>.json.gz
func (a *Archiver) objectKey(deviceID string, seq uint64, at time.Time) string {
	return fmt.Sprintf("%s%s/%d-%d.json.gz", a.devicePrefix(deviceID), at.Format("2006/01/02"), at.UnixMilli(), seq)
}

func encodeSnapshot(snap domain.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(snap); err != nil {
		return nil, fmt.Errorf("s3blob: encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("s3blob: compress snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeSnapshot reads an archive body. Objects stored without a content
// encoding are assumed to be gzip, which is all this package writes.
func decodeSnapshot(r io.Reader, encoding string) (domain.Snapshot, error) {
	switch encoding {
	case "", archiveContentEncoding:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("s3blob: decompress snapshot: %w", err)
		}
		defer zr.Close()
		r = zr
	case "identity":
	default:
		return domain.Snapshot{}, fmt.Errorf("s3blob: unsupported archive encoding %q", encoding)
	}

	var snap domain.Snapshot
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("s3blob: decode snapshot: %w", err)
	}
	return snap, nil
}
