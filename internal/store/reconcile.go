package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/franz/project-copilot/internal/util"
)

// ReconcileReport records what the structural reconciliation pass changed
type ReconcileReport struct {
	Rebuilt        []string // plan descriptions
	RowsCopied     int
	AddedColumns   []string // table.column
	DroppedIndexes []string
	RepairedRows   int
}

// Changed reports whether the pass modified anything
func (r ReconcileReport) Changed() bool {
	return len(r.Rebuilt) > 0 || len(r.AddedColumns) > 0 || len(r.DroppedIndexes) > 0 || r.RepairedRows > 0
}

// LastReconcile returns the report of the reconciliation run by Open
func (s *Store) LastReconcile() ReconcileReport {
	return s.lastReconcile
}

// reconcile converges the tables to their canonical shape. It runs on a
// pinned connection because foreign key enforcement can only be toggled
// outside a transaction.
func (s *Store) reconcile(ctx context.Context) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("failed to disable foreign keys: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), "PRAGMA foreign_keys = ON"); err != nil {
			util.WarnLog("Failed to re-enable foreign keys: %v", err)
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	report, err := reconcileTx(ctx, tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reconciliation: %w", err)
	}

	s.lastReconcile = report
	if report.Changed() {
		util.InfoLog("Schema reconciled: %d rebuilt, %d columns added, %d indexes dropped, %d rows repaired",
			len(report.Rebuilt), len(report.AddedColumns), len(report.DroppedIndexes), report.RepairedRows)
	}
	return nil
}

func reconcileTx(ctx context.Context, tx *sql.Tx) (ReconcileReport, error) {
	var report ReconcileReport

	// artifacts
	if err := createIfMissing(ctx, tx, tableArtifacts, artifactsDDL(tableArtifacts)); err != nil {
		return report, err
	}
	shape, err := inspectTable(ctx, tx, tableArtifacts)
	if err != nil {
		return report, err
	}
	plan, err := PlanArtifactsRebuild(shape)
	if err != nil {
		return report, err
	}
	if plan != nil {
		if err := runPlan(ctx, tx, plan, &report); err != nil {
			return report, err
		}
	} else {
		if err := addColumns(ctx, tx, tableArtifacts, artifactColumns, &report); err != nil {
			return report, err
		}
		if err := pruneUniqueIndexes(ctx, tx, shape, &report); err != nil {
			return report, err
		}
	}

	// artifact_text
	if err := createIfMissing(ctx, tx, tableText, textDDL(tableText)); err != nil {
		return report, err
	}
	shape, err = inspectTable(ctx, tx, tableText)
	if err != nil {
		return report, err
	}
	if plan := PlanTextRebuild(shape); plan != nil {
		if err := runPlan(ctx, tx, plan, &report); err != nil {
			return report, err
		}
	} else if err := addColumns(ctx, tx, tableText, textColumns, &report); err != nil {
		return report, err
	}

	// index_runs
	if err := createIfMissing(ctx, tx, tableRuns, runsDDL); err != nil {
		return report, err
	}
	if err := addColumns(ctx, tx, tableRuns, runColumns, &report); err != nil {
		return report, err
	}

	n, err := repairTextInvariant(ctx, tx)
	if err != nil {
		return report, err
	}
	report.RepairedRows = n

	return report, nil
}

func createIfMissing(ctx context.Context, tx *sql.Tx, table, ddl string) error {
	exists, err := tableExists(ctx, tx, table)
	if err != nil || exists {
		return err
	}
	util.WarnLog("Table %s missing after migrations, creating it", table)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s: %w", table, err)
	}
	return nil
}

func runPlan(ctx context.Context, tx *sql.Tx, plan *RebuildPlan, report *ReconcileReport) error {
	util.WarnLog("Legacy schema detected, %s", plan)
	copied, err := plan.Run(ctx, tx)
	if err != nil {
		return err
	}
	report.Rebuilt = append(report.Rebuilt, plan.String())
	report.RowsCopied += copied
	return nil
}

func addColumns(ctx context.Context, tx *sql.Tx, table string, cols []column, report *ReconcileReport) error {
	added, err := ensureColumns(ctx, tx, table, cols)
	for _, c := range added {
		report.AddedColumns = append(report.AddedColumns, table+"."+c)
	}
	return err
}

// pruneUniqueIndexes leaves exactly one unique index on (path) and drops
// created unique indexes over any other column set. Constraint-backed
// indexes cannot be dropped; the rebuild path handles those.
func pruneUniqueIndexes(ctx context.Context, tx *sql.Tx, shape TableShape, report *ReconcileReport) error {
	keptPath := false
	for _, idx := range shape.Indexes {
		if idx.Unique && idx.Origin != "c" && sameColumns(idx.Columns, []string{"path"}) {
			keptPath = true
		}
	}

	for _, idx := range shape.Indexes {
		if !idx.Unique || idx.Origin != "c" {
			continue
		}
		if sameColumns(idx.Columns, []string{"path"}) && !keptPath {
			keptPath = true
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP INDEX %q", idx.Name)); err != nil {
			return fmt.Errorf("failed to drop index %s: %w", idx.Name, err)
		}
		report.DroppedIndexes = append(report.DroppedIndexes, idx.Name)
	}
	return nil
}

// repairTextInvariant enforces "extracted text exists iff status is indexed":
// text of non-indexed artifacts is removed, and indexed artifacts without
// text go back to new so the next pass re-extracts them.
func repairTextInvariant(ctx context.Context, tx *sql.Tx) (int, error) {
	res, err := tx.ExecContext(ctx, `
		DELETE FROM artifact_text
		WHERE artifact_id NOT IN (SELECT id FROM artifacts WHERE ingest_status = 'indexed')`)
	if err != nil {
		return 0, fmt.Errorf("failed to remove orphaned text: %w", err)
	}
	removed, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `
		UPDATE artifacts SET ingest_status = 'new'
		WHERE ingest_status = 'indexed'
		  AND id NOT IN (SELECT artifact_id FROM artifact_text)`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset artifacts without text: %w", err)
	}
	reset, _ := res.RowsAffected()

	return int(removed + reset), nil
}

var performanceIndexes = []struct{ name, ddl string }{
	{"idx_artifacts_ext", "CREATE INDEX IF NOT EXISTS idx_artifacts_ext ON artifacts(ext)"},
	{"idx_artifacts_status", "CREATE INDEX IF NOT EXISTS idx_artifacts_status ON artifacts(ingest_status)"},
	{"idx_artifacts_modified_at", "CREATE INDEX IF NOT EXISTS idx_artifacts_modified_at ON artifacts(modified_at)"},
	{"idx_artifacts_updated_at", "CREATE INDEX IF NOT EXISTS idx_artifacts_updated_at ON artifacts(updated_at)"},
	{"idx_index_runs_started_at", "CREATE INDEX IF NOT EXISTS idx_index_runs_started_at ON index_runs(started_at)"},
}

// ensureIndexes creates performance indexes. Failures are logged, not fatal.
func (s *Store) ensureIndexes(ctx context.Context) {
	for _, idx := range performanceIndexes {
		if _, err := s.db.ExecContext(ctx, idx.ddl); err != nil {
			util.WarnLog("Failed to create index %s: %v", idx.name, err)
		}
	}
}

// ensureFullText creates (and backfills) or drops the FTS5 projection to match
// want. An engine without FTS5 is not an error; it is reported in the result.
func (s *Store) ensureFullText(ctx context.Context, want bool) Capabilities {
	if !want {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+tableFTS); err != nil {
			util.WarnLog("Failed to drop disabled full-text table: %v", err)
		}
		return Capabilities{FullTextReason: "disabled by configuration"}
	}

	existed, err := tableExists(ctx, s.db, tableFTS)
	if err != nil {
		util.WarnLog("Full-text check failed, using substring search: %v", err)
		return Capabilities{FullTextReason: err.Error()}
	}

	if _, err := s.db.ExecContext(ctx, ftsDDL); err != nil {
		util.WarnLog("FTS5 not available, using substring search: %v", err)
		return Capabilities{FullTextReason: err.Error()}
	}

	// a rebuild can move text between identities without changing the row count
	if err := s.backfillFullText(ctx, !existed || len(s.lastReconcile.Rebuilt) > 0); err != nil {
		util.WarnLog("Full-text backfill failed, using substring search: %v", err)
		return Capabilities{FullTextReason: err.Error()}
	}
	return Capabilities{FullText: true}
}

// backfillFullText repopulates the projection from artifact_text when force
// is set or its row count disagrees with the text table.
func (s *Store) backfillFullText(ctx context.Context, force bool) error {
	var ftsRows, textRows int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tableFTS).Scan(&ftsRows); err != nil {
		return err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tableText).Scan(&textRows); err != nil {
		return err
	}
	if !force && ftsRows == textRows {
		return nil
	}
	if textRows == 0 && ftsRows == 0 {
		return nil
	}

	util.InfoLog("Rebuilding full-text index from %d stored texts", textRows)
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+tableFTS); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO artifact_fts (filename, path, text, ref_id)
			SELECT a.filename, a.path, t.text, a.id
			FROM artifact_text t JOIN artifacts a ON a.id = t.artifact_id`)
		return err
	})
}
