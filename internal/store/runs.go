package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// IndexRun is an append-only audit record of one indexing pass
type IndexRun struct {
	RunID               string
	StartedAt           time.Time
	EndedAt             time.Time
	Env                 string
	Dir                 string
	Mode                string // "all" or "incremental"
	FilesSeen           int
	FilesIndexed        int
	FilesFailed         int
	FilesNotExtractable int
	FullText            bool
}

// Duration returns how long the run took
func (r *IndexRun) Duration() time.Duration {
	if r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// RecordIndexRun appends a run record. Runs are never updated or deleted.
func (s *Store) RecordIndexRun(ctx context.Context, run *IndexRun) error {
	if run.RunID == "" {
		return fmt.Errorf("record index run: empty run id")
	}

	fts := 0
	if run.FullText {
		fts = 1
	}

	err := s.write(ctx, "record index run", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO index_runs (
				run_id, started_at, ended_at, env, ingest_dir, mode,
				files_seen, files_indexed, files_failed, files_not_extractable, fts_enabled
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.StartedAt.UTC().Format(timeLayout), run.EndedAt.UTC().Format(timeLayout),
			run.Env, run.Dir, run.Mode,
			run.FilesSeen, run.FilesIndexed, run.FilesFailed, run.FilesNotExtractable, fts)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record index run %s: %w", run.RunID, err)
	}
	return nil
}

// ListIndexRuns returns the most recent runs first
func (s *Store) ListIndexRuns(ctx context.Context, limit int) ([]*IndexRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, ended_at, COALESCE(env, ''), COALESCE(ingest_dir, ''),
		       COALESCE(mode, ''), COALESCE(files_seen, 0), COALESCE(files_indexed, 0),
		       COALESCE(files_failed, 0), COALESCE(files_not_extractable, 0), COALESCE(fts_enabled, 0)
		FROM index_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list index runs: %w", err)
	}
	defer rows.Close()

	var runs []*IndexRun
	for rows.Next() {
		var (
			r              IndexRun
			started, ended sql.NullString
			fts            int
		)
		if err := rows.Scan(&r.RunID, &started, &ended, &r.Env, &r.Dir, &r.Mode,
			&r.FilesSeen, &r.FilesIndexed, &r.FilesFailed, &r.FilesNotExtractable, &fts); err != nil {
			return nil, fmt.Errorf("failed to scan index run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.EndedAt = parseTime(ended)
		r.FullText = fts == 1
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// CountIndexRuns returns the number of recorded runs
func (s *Store) CountIndexRuns(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM index_runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count index runs: %w", err)
	}
	return n, nil
}
