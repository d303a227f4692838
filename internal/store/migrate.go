package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/franz/project-copilot/internal/util"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one versioned, file-defined schema script
type Migration struct {
	Version string // file name without extension, e.g. "001_artifacts"
	SQL     string
}

// loadMigrations returns the embedded scripts in version order
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		body, err := fs.ReadFile(fsys, path.Join("migrations", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{
			Version: strings.TrimSuffix(e.Name(), ".sql"),
			SQL:     string(body),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// migrate applies embedded migrations that are not yet in the ledger
func (s *Store) migrate(ctx context.Context) error {
	migrations, err := loadMigrations(migrationFS)
	if err != nil {
		return fmt.Errorf("%w: %w", util.ErrMigration, err)
	}
	applied, err := applyMigrations(ctx, s.db, migrations)
	if err != nil {
		return err
	}
	for _, v := range applied {
		util.DebugLog("Applied migration %s", v)
	}
	return nil
}

// applyMigrations runs every pending script inside one transaction.
// Any failure rolls back all of them and wraps util.ErrMigration.
func applyMigrations(ctx context.Context, db *sql.DB, migrations []Migration) ([]string, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", util.ErrMigration, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
		  version TEXT PRIMARY KEY,
		  applied_at TEXT DEFAULT (%s)
		)`, tableLedger, sqlNow)); err != nil {
		return nil, fmt.Errorf("%w: failed to create ledger: %w", util.ErrMigration, err)
	}

	done, err := appliedVersions(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrMigration, err)
	}

	var applied []string
	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", util.ErrMigration, m.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (version) VALUES (?)", tableLedger), m.Version); err != nil {
			return nil, fmt.Errorf("%w: failed to record %s: %w", util.ErrMigration, m.Version, err)
		}
		applied = append(applied, m.Version)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit: %w", util.ErrMigration, err)
	}
	return applied, nil
}

func appliedVersions(ctx context.Context, q querier) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT version FROM %s", tableLedger))
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	return done, rows.Err()
}

// AppliedMigrations lists ledger versions in order
func (s *Store) AppliedMigrations(ctx context.Context) ([]string, error) {
	done, err := appliedVersions(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(done))
	for v := range done {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}
