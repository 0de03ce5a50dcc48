package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/simlink/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/simlink?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "simlink"}))
	assert.Equal(t, "postgres://u:p@db:6543/simlink?sslmode=require",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Port: 6543, Database: "simlink", SSLMode: "require"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestMigrationFilesOrdered(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_connection_journal.sql", "002_snapshot_archive.sql"}, names)
}

func TestListJournalQuery(t *testing.T) {
	q, args := listJournalQuery("dev-1", domain.ListOpts{})
	assert.Equal(t, `SELECT id, device_id, event, status, detail, created_at FROM connection_journal WHERE device_id = $1 ORDER BY created_at DESC, id DESC`, q)
	assert.Equal(t, []any{"dev-1"}, args)

	since := time.Unix(100, 0)
	q, args = listJournalQuery("dev-1", domain.ListOpts{Since: &since, Limit: 20, Offset: 40})
	assert.Contains(t, q, "AND created_at >= $2")
	assert.Contains(t, q, "LIMIT $3")
	assert.Contains(t, q, "OFFSET $4")
	assert.NotContains(t, q, "created_at <=")
	assert.Equal(t, []any{"dev-1", since, 20, 40}, args)
}
