package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// JournalStore implements domain.JournalStore on the connection_journal table.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a new JournalStore backed by the given connection pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Append writes one journal row. The detail map is stored as JSONB; a zero
// CreatedAt takes the database clock.
func (s *JournalStore) Append(ctx context.Context, e domain.JournalEntry) error {
	detail := e.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal journal detail: %w", err)
	}

	const query = `
		INSERT INTO connection_journal (device_id, event, status, detail, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`
	var createdAt any
	if !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt
	}
	if _, err := s.pool.Exec(ctx, query, e.DeviceID, e.Event, string(e.Status), detailJSON, createdAt); err != nil {
		return fmt.Errorf("postgres: append journal %s: %w", e.Event, err)
	}
	return nil
}

// List returns the newest entries for deviceID first.
func (s *JournalStore) List(ctx context.Context, deviceID string, opts domain.ListOpts) ([]domain.JournalEntry, error) {
	query, args := listJournalQuery(deviceID, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal: %w", err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var (
			e          domain.JournalEntry
			status     string
			detailJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Event, &status, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan journal entry: %w", err)
		}
		e.Status = domain.Status(status)
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal journal detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate journal: %w", err)
	}
	return entries, nil
}

func listJournalQuery(deviceID string, opts domain.ListOpts) (string, []any) {
	query := `SELECT id, device_id, event, status, detail, created_at FROM connection_journal WHERE device_id = $1`
	args := []any{deviceID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

// Compile-time interface check.
var _ domain.JournalStore = (*JournalStore)(nil)
