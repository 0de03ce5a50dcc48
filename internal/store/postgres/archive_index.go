package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// ArchiveIndex records which snapshot objects were uploaded.
type ArchiveIndex struct {
	pool *pgxpool.Pool
}

// NewArchiveIndex creates an ArchiveIndex backed by the given pool.
func NewArchiveIndex(pool *pgxpool.Pool) *ArchiveIndex {
	return &ArchiveIndex{pool: pool}
}

// Record inserts rec. Re-recording the same object key is a no-op.
func (a *ArchiveIndex) Record(ctx context.Context, rec domain.ArchiveRecord) error {
	const query = `
		INSERT INTO snapshot_archive (device_id, sequence, object_key, size_bytes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (object_key) DO NOTHING`
	if _, err := a.pool.Exec(ctx, query, rec.DeviceID, int64(rec.Sequence), rec.ObjectKey, rec.SizeBytes); err != nil {
		return fmt.Errorf("postgres: record archive %s: %w", rec.ObjectKey, err)
	}
	return nil
}

// Latest returns the newest archive for deviceID or domain.ErrNotFound.
func (a *ArchiveIndex) Latest(ctx context.Context, deviceID string) (domain.ArchiveRecord, error) {
	const query = `
		SELECT device_id, sequence, object_key, size_bytes, created_at
		FROM snapshot_archive WHERE device_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`
	var (
		rec domain.ArchiveRecord
		seq int64
	)
	err := a.pool.QueryRow(ctx, query, deviceID).Scan(&rec.DeviceID, &seq, &rec.ObjectKey, &rec.SizeBytes, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ArchiveRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ArchiveRecord{}, fmt.Errorf("postgres: latest archive %s: %w", deviceID, err)
	}
	rec.Sequence = uint64(seq)
	return rec, nil
}

// Compile-time interface check.
var _ domain.ArchiveIndex = (*ArchiveIndex)(nil)
