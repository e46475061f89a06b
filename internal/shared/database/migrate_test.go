package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/sos-villages/signalement/internal/shared/config"
)

func TestMigrationFiles(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	require.Equal(t, "001_init.sql", files[0])
}

func TestInitialSchemaCoversRepositories(t *testing.T) {
	content, err := fs.ReadFile(migrationsFS, "migrations/001_init.sql")
	require.NoError(t, err)
	schema := string(content)

	for _, table := range []string{
		"villages", "users", "cases", "case_attachments", "case_documents",
		"case_assignments", "notifications", "audit_log",
	} {
		require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}

	// Reminder idempotency and the two-psychologist invariant rely on these.
	require.Contains(t, schema, "UNIQUE (user_id, case_id, type)")
	require.Contains(t, schema, "UNIQUE (case_id, role)")
	require.Contains(t, schema, "UNIQUE (case_id, psychologist_id)")
	require.True(t, strings.Contains(schema, "BEFORE UPDATE OR DELETE ON audit_log"))
}

func TestPendingMigrations(t *testing.T) {
	files := []string{"001_init.sql", "002_reports.sql", "003_indexes.sql"}

	require.Equal(t, files, pending(files, nil))
	require.Equal(t, []string{"002_reports.sql", "003_indexes.sql"}, pending(files, []string{"001_init"}))
	require.Empty(t, pending(files, []string{"001_init", "002_reports", "003_indexes"}))
}

func TestApplyPoolLimits(t *testing.T) {
	pc, err := pgxpool.ParseConfig("host=localhost port=5432 user=u password=p dbname=d sslmode=disable")
	require.NoError(t, err)

	applyPoolLimits(pc, config.DatabaseConfig{MaxConns: 8, MinConns: 3})
	require.Equal(t, int32(8), pc.MaxConns)
	require.Equal(t, int32(3), pc.MinConns)

	pc, err = pgxpool.ParseConfig("host=localhost port=5432 user=u password=p dbname=d sslmode=disable")
	require.NoError(t, err)
	applyPoolLimits(pc, config.DatabaseConfig{MaxConns: 2, MinConns: 5})
	require.Equal(t, int32(2), pc.MaxConns)
	require.Equal(t, int32(0), pc.MinConns)
}
