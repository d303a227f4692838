package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// sqlNow is the timestamp expression used for every stored timestamp so that
// string ordering matches time ordering.
const sqlNow = `strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`

const timeLayout = "2006-01-02T15:04:05.000Z"

const (
	tableArtifacts = "artifacts"
	tableText      = "artifact_text"
	tableRuns      = "index_runs"
	tableFTS       = "artifact_fts"
	tableLedger    = "schema_migrations"
)

// column describes a canonical column. addDDL is the definition used when the
// column is added to an existing table; ALTER TABLE ADD COLUMN cannot carry
// non-constant defaults or table constraints.
type column struct {
	name   string
	addDDL string
}

var artifactColumns = []column{
	{"id", ""},
	{"path", "TEXT"},
	{"filename", "TEXT"},
	{"ext", "TEXT"},
	{"size_bytes", "INTEGER"},
	{"modified_at", "REAL"},
	{"sha256", "TEXT"},
	{"ingest_status", "TEXT NOT NULL DEFAULT 'new'"},
	{"error", "TEXT"},
	{"updated_at", "TEXT"},
	{"created_at", "TEXT"},
}

var textColumns = []column{
	{"artifact_id", ""},
	{"text", "TEXT"},
	{"extracted_at", "TEXT"},
	{"extractor", "TEXT"},
	{"chars", "INTEGER"},
}

var runColumns = []column{
	{"run_id", "TEXT"},
	{"started_at", "TEXT"},
	{"ended_at", "TEXT"},
	{"env", "TEXT"},
	{"ingest_dir", "TEXT"},
	{"mode", "TEXT"},
	{"files_seen", "INTEGER NOT NULL DEFAULT 0"},
	{"files_indexed", "INTEGER NOT NULL DEFAULT 0"},
	{"files_failed", "INTEGER NOT NULL DEFAULT 0"},
	{"files_not_extractable", "INTEGER NOT NULL DEFAULT 0"},
	{"fts_enabled", "INTEGER NOT NULL DEFAULT 0"},
}

// artifactsDDL returns the canonical artifacts table definition under name
func artifactsDDL(name string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT NOT NULL,
  filename TEXT,
  ext TEXT,
  size_bytes INTEGER,
  modified_at REAL,
  sha256 TEXT,
  ingest_status TEXT NOT NULL DEFAULT 'new',
  error TEXT,
  updated_at TEXT,
  created_at TEXT DEFAULT (%s),
  CONSTRAINT uq_artifacts_path UNIQUE(path)
)`, name, sqlNow)
}

// textDDL returns the canonical artifact_text table definition under name
func textDDL(name string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
  artifact_id INTEGER PRIMARY KEY,
  text TEXT,
  extracted_at TEXT,
  extractor TEXT,
  chars INTEGER,
  FOREIGN KEY(artifact_id) REFERENCES artifacts(id) ON DELETE CASCADE
)`, name)
}

const runsDDL = `CREATE TABLE index_runs (
  run_id TEXT PRIMARY KEY,
  started_at TEXT,
  ended_at TEXT,
  env TEXT,
  ingest_dir TEXT,
  mode TEXT,
  files_seen INTEGER NOT NULL DEFAULT 0,
  files_indexed INTEGER NOT NULL DEFAULT 0,
  files_failed INTEGER NOT NULL DEFAULT 0,
  files_not_extractable INTEGER NOT NULL DEFAULT 0,
  fts_enabled INTEGER NOT NULL DEFAULT 0
)`

const ftsDDL = `CREATE VIRTUAL TABLE IF NOT EXISTS artifact_fts USING fts5(
  filename,
  path,
  text,
  ref_id UNINDEXED
)`

// querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ColumnInfo is one row of PRAGMA table_info
type ColumnInfo struct {
	Name string
	Type string
	PK   int
}

// IndexInfo is a unique index with its columns, from PRAGMA index_list/index_info
type IndexInfo struct {
	Name    string
	Unique  bool
	Origin  string // "c" CREATE INDEX, "u" UNIQUE constraint, "pk" primary key
	Columns []string
}

// ForeignKey is one row of PRAGMA foreign_key_list
type ForeignKey struct {
	Table string
	From  string
	To    string
}

// TableShape is everything the reconciliation pass needs to know about an existing table
type TableShape struct {
	Name        string
	Exists      bool
	Columns     []ColumnInfo
	Indexes     []IndexInfo
	ForeignKeys []ForeignKey
}

// Has reports whether the table has a column with this name
func (t TableShape) Has(name string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// PrimaryKey returns the primary key column names in key order
func (t TableShape) PrimaryKey() []string {
	var pk []string
	for i := 1; ; i++ {
		found := false
		for _, c := range t.Columns {
			if c.PK == i {
				pk = append(pk, c.Name)
				found = true
			}
		}
		if !found {
			return pk
		}
	}
}

// UniqueOn returns the unique indexes covering exactly cols
func (t TableShape) UniqueOn(cols ...string) []IndexInfo {
	var out []IndexInfo
	for _, idx := range t.Indexes {
		if idx.Unique && sameColumns(idx.Columns, cols) {
			out = append(out, idx)
		}
	}
	return out
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

func tableExists(ctx context.Context, q querier, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", name, err)
	}
	return n > 0, nil
}

// inspectTable introspects a table's columns, indexes, and foreign keys
func inspectTable(ctx context.Context, q querier, name string) (TableShape, error) {
	shape := TableShape{Name: name}

	exists, err := tableExists(ctx, q, name)
	if err != nil || !exists {
		return shape, err
	}
	shape.Exists = true

	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", name))
	if err != nil {
		return shape, fmt.Errorf("table_info(%s): %w", name, err)
	}
	for rows.Next() {
		var (
			cid     int
			col     ColumnInfo
			notNull int
			dflt    sql.NullString
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dflt, &col.PK); err != nil {
			rows.Close()
			return shape, fmt.Errorf("table_info(%s): %w", name, err)
		}
		shape.Columns = append(shape.Columns, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return shape, err
	}

	rows, err = q.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%q)", name))
	if err != nil {
		return shape, fmt.Errorf("index_list(%s): %w", name, err)
	}
	for rows.Next() {
		var (
			seq     int
			idx     IndexInfo
			unique  int
			partial int
		)
		if err := rows.Scan(&seq, &idx.Name, &unique, &idx.Origin, &partial); err != nil {
			rows.Close()
			return shape, fmt.Errorf("index_list(%s): %w", name, err)
		}
		idx.Unique = unique == 1
		shape.Indexes = append(shape.Indexes, idx)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return shape, err
	}

	for i := range shape.Indexes {
		cols, err := indexColumns(ctx, q, shape.Indexes[i].Name)
		if err != nil {
			return shape, err
		}
		shape.Indexes[i].Columns = cols
	}

	rows, err = q.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", name))
	if err != nil {
		return shape, fmt.Errorf("foreign_key_list(%s): %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, seq                   int
			fk                        ForeignKey
			to                        sql.NullString
			onUpdate, onDelete, match string
		)
		if err := rows.Scan(&id, &seq, &fk.Table, &fk.From, &to, &onUpdate, &onDelete, &match); err != nil {
			return shape, fmt.Errorf("foreign_key_list(%s): %w", name, err)
		}
		fk.To = to.String
		shape.ForeignKeys = append(shape.ForeignKeys, fk)
	}
	return shape, rows.Err()
}

func indexColumns(ctx context.Context, q querier, index string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%q)", index))
	if err != nil {
		return nil, fmt.Errorf("index_info(%s): %w", index, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			seqno, cid int
			name       sql.NullString
		)
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, fmt.Errorf("index_info(%s): %w", index, err)
		}
		cols = append(cols, name.String)
	}
	return cols, rows.Err()
}

// ensureColumns adds any missing columns. It never drops or renames.
func ensureColumns(ctx context.Context, q querier, table string, want []column) ([]string, error) {
	shape, err := inspectTable(ctx, q, table)
	if err != nil || !shape.Exists {
		return nil, err
	}

	var added []string
	for _, col := range want {
		if col.addDDL == "" || shape.Has(col.name) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, col.name, col.addDDL)
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return added, fmt.Errorf("failed to add column %s.%s: %w", table, col.name, err)
		}
		added = append(added, col.name)
	}
	return added, nil
}
