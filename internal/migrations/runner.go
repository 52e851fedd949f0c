// Package migrations applies the service's schema migrations. Migrations are
// plain SQL files embedded in the binary, applied in lexical order, each inside
// its own transaction, and recorded in _authd_migrations.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// Migration records an applied migration.
type Migration struct {
	Name      string
	AppliedAt time.Time
}

// Runner applies schema migrations against a pool.
type Runner struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	fsys   fs.FS
}

// NewRunner returns a Runner over the embedded migration files.
func NewRunner(pool *pgxpool.Pool, logger *slog.Logger) *Runner {
	return &Runner{pool: pool, logger: logger, fsys: embeddedMigrations}
}

// NewRunnerWithFS returns a Runner over a caller-provided filesystem. The
// filesystem must contain migration files under sql/.
func NewRunnerWithFS(pool *pgxpool.Pool, logger *slog.Logger, fsys fs.FS) *Runner {
	return &Runner{pool: pool, logger: logger, fsys: fsys}
}

// Bootstrap creates the migration bookkeeping table. Idempotent.
func (r *Runner) Bootstrap(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS _authd_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("creating _authd_migrations: %w", err)
	}
	return nil
}

// Run applies pending migrations in lexical order and returns how many were
// applied. Each migration runs in its own transaction; a failure rolls that
// migration back and stops the run.
func (r *Runner) Run(ctx context.Context) (int, error) {
	names, err := r.pending(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, name := range names {
		sql, err := fs.ReadFile(r.fsys, "sql/"+name)
		if err != nil {
			return applied, fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := r.apply(ctx, name, string(sql)); err != nil {
			return applied, fmt.Errorf("applying migration %s: %w", name, err)
		}
		r.logger.Info("migration applied", "name", name)
		applied++
	}
	return applied, nil
}

// GetApplied returns applied migrations in name order.
func (r *Runner) GetApplied(ctx context.Context) ([]Migration, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT name, applied_at FROM _authd_migrations ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}
	defer rows.Close()

	var out []Migration
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Name, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// pending lists embedded migrations not yet recorded, sorted by name.
func (r *Runner) pending(ctx context.Context) ([]string, error) {
	entries, err := fs.ReadDir(r.fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("reading migration directory: %w", err)
	}

	done := make(map[string]bool)
	rows, err := r.pool.Query(ctx, "SELECT name FROM _authd_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || done[e.Name()] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// apply runs one migration and records it, atomically.
func (r *Runner) apply(ctx context.Context, name, sql string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, sql); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO _authd_migrations (name) VALUES ($1)", name); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
