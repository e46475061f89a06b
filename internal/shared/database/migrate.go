package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockKey serializes Migrate across instances booting together
const migrationLockKey int64 = 0x5051_4d49_4752

// Migrate applies the embedded migrations not yet recorded in
// schema_migrations, each in its own transaction. It returns the versions it
// applied.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) ([]string, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire migration connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return nil, fmt.Errorf("failed to lock migrations: %w", err)
	}
	defer conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockKey)

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	files, err := migrationFiles()
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, file := range pending(files, versions) {
		version := strings.TrimSuffix(file, ".sql")
		content, err := fs.ReadFile(migrationsFS, "migrations/"+file)
		if err != nil {
			return applied, fmt.Errorf("failed to read migration %s: %w", file, err)
		}

		err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("migration %s failed: %w", file, err)
		}

		logger.Info("applied migration", zap.String("version", version))
		applied = append(applied, version)
	}
	return applied, nil
}

// migrationFiles lists the embedded migrations in apply order
func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// pending keeps the files whose version is not in applied, preserving order
func pending(files, applied []string) []string {
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}
	var out []string
	for _, f := range files {
		if !done[strings.TrimSuffix(f, ".sql")] {
			out = append(out, f)
		}
	}
	return out
}
