package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/franz/project-copilot/internal/util"
)

// Status is the stored outcome of the most recent indexing attempt
type Status string

const (
	StatusNew            Status = "new"
	StatusIndexed        Status = "indexed"
	StatusFailed         Status = "failed"
	StatusNotExtractable Status = "not_extractable"
)

// Statuses lists the stored vocabulary
var Statuses = []Status{StatusNew, StatusIndexed, StatusFailed, StatusNotExtractable}

// ParseStatus validates a stored status value
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", util.ErrInvalidStatus, s)
}

// ArtifactMeta is the filesystem metadata written by UpsertArtifact
type ArtifactMeta struct {
	Path       string
	Filename   string
	Ext        string
	SizeBytes  int64
	ModifiedAt float64 // unix seconds
	SHA256     string  // empty means unknown
}

// Artifact is a tracked file
type Artifact struct {
	ID         int64
	Path       string
	Filename   string
	Ext        string
	SizeBytes  int64
	ModifiedAt float64
	SHA256     string
	Status     Status
	Error      string
	UpdatedAt  time.Time
	CreatedAt  time.Time
}

// ExtractedText is the stored text of an indexed artifact
type ExtractedText struct {
	ArtifactID  int64
	Text        string
	Chars       int
	Extractor   string
	ExtractedAt time.Time
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05.999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s.String); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// UpsertArtifact inserts or updates the artifact keyed by path and returns its identity.
// New rows start as "new". On conflict the size, modification time and updated
// timestamp are refreshed; a known hash is never replaced by an unknown one.
func (s *Store) UpsertArtifact(ctx context.Context, meta ArtifactMeta) (int64, error) {
	if meta.Path == "" {
		return 0, fmt.Errorf("upsert artifact: empty path")
	}

	var id int64
	err := s.write(ctx, "upsert artifact", func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, fmt.Sprintf(`
			INSERT INTO artifacts (path, filename, ext, size_bytes, modified_at, sha256, ingest_status, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 'new', %[1]s)
			ON CONFLICT(path) DO UPDATE SET
				filename = excluded.filename,
				ext = excluded.ext,
				size_bytes = excluded.size_bytes,
				modified_at = excluded.modified_at,
				sha256 = COALESCE(excluded.sha256, artifacts.sha256),
				updated_at = %[1]s
			RETURNING id`, sqlNow),
			meta.Path, meta.Filename, meta.Ext, meta.SizeBytes, meta.ModifiedAt, nullString(meta.SHA256),
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert artifact %s: %w", meta.Path, err)
	}
	return id, nil
}

// SetStatus records a non-indexed outcome for an artifact. Any previously
// extracted text and its search entry are removed in the same transaction.
// "indexed" is rejected here; only SaveExtractedText produces it.
func (s *Store) SetStatus(ctx context.Context, id int64, status Status, errMsg string) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	if status == StatusIndexed {
		return fmt.Errorf("%w: indexed is set by SaveExtractedText", util.ErrInvalidStatus)
	}

	fullText := s.caps.FullText
	err := s.write(ctx, "set status", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE artifacts SET ingest_status = ?, error = ?, updated_at = %s
			WHERE id = ?`, sqlNow), string(status), nullString(errMsg), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: artifact %d", util.ErrNotFound, id)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM artifact_text WHERE artifact_id = ?", id); err != nil {
			return err
		}
		if fullText {
			if _, err := tx.ExecContext(ctx, "DELETE FROM artifact_fts WHERE ref_id = ?", id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set status of artifact %d: %w", id, err)
	}
	return nil
}

// SaveExtractedText stores the text of an artifact, marks it indexed, clears
// any previous error, and replaces its full-text entry when full-text search
// is active. The entry is deleted and re-inserted; FTS5 has no safe in-place update.
func (s *Store) SaveExtractedText(ctx context.Context, id int64, text, extractor string, chars int, filename, path string) error {
	fullText := s.caps.FullText
	err := s.write(ctx, "save extracted text", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE artifacts SET ingest_status = 'indexed', error = NULL, updated_at = %s
			WHERE id = ?`, sqlNow), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: artifact %d", util.ErrNotFound, id)
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO artifact_text (artifact_id, text, extracted_at, extractor, chars)
			VALUES (?, ?, %[1]s, ?, ?)
			ON CONFLICT(artifact_id) DO UPDATE SET
				text = excluded.text,
				extracted_at = %[1]s,
				extractor = excluded.extractor,
				chars = excluded.chars`, sqlNow),
			id, text, extractor, chars); err != nil {
			return err
		}

		if !fullText {
			return nil
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM artifact_fts WHERE ref_id = ?", id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO artifact_fts (filename, path, text, ref_id)
			VALUES (?, ?, ?, ?)`, filename, path, text, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save text of artifact %d: %w", id, err)
	}
	return nil
}

const artifactSelect = `
	SELECT id, path, COALESCE(filename, ''), COALESCE(ext, ''), COALESCE(size_bytes, 0),
	       COALESCE(modified_at, 0), COALESCE(sha256, ''), ingest_status, COALESCE(error, ''),
	       updated_at, created_at
	FROM artifacts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*Artifact, error) {
	var (
		a                Artifact
		status           string
		updated, created sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Path, &a.Filename, &a.Ext, &a.SizeBytes, &a.ModifiedAt,
		&a.SHA256, &status, &a.Error, &updated, &created); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.UpdatedAt = parseTime(updated)
	a.CreatedAt = parseTime(created)
	return &a, nil
}

// GetArtifact retrieves an artifact by identity; nil when not found
func (s *Store) GetArtifact(ctx context.Context, id int64) (*Artifact, error) {
	a, err := scanArtifact(s.db.QueryRowContext(ctx, artifactSelect+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return a, nil
}

// GetArtifactByPath retrieves an artifact by path; nil when not found
func (s *Store) GetArtifactByPath(ctx context.Context, path string) (*Artifact, error) {
	a, err := scanArtifact(s.db.QueryRowContext(ctx, artifactSelect+" WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return a, nil
}

// GetExtractedText retrieves the stored text of an artifact; nil when there is none
func (s *Store) GetExtractedText(ctx context.Context, id int64) (*ExtractedText, error) {
	var (
		t         ExtractedText
		extracted sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT artifact_id, COALESCE(text, ''), COALESCE(chars, 0), COALESCE(extractor, ''), extracted_at
		FROM artifact_text WHERE artifact_id = ?`, id,
	).Scan(&t.ArtifactID, &t.Text, &t.Chars, &t.Extractor, &extracted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get extracted text: %w", err)
	}
	t.ExtractedAt = parseTime(extracted)
	return &t, nil
}

// ArtifactPage selects one keyset page of artifacts
type ArtifactPage struct {
	// Dir restricts results to paths under this directory (any depth); empty means all
	Dir string
	// AfterID returns artifacts with identity greater than this
	AfterID int64
	Limit   int
}

// ListArtifacts returns artifacts ordered by identity, one page at a time.
// Callers advance AfterID to the last identity returned until a short page.
func (s *Store) ListArtifacts(ctx context.Context, page ArtifactPage) ([]*Artifact, error) {
	if page.Limit <= 0 {
		page.Limit = 500
	}

	query := artifactSelect + " WHERE id > ?"
	args := []any{page.AfterID}
	if page.Dir != "" {
		// Range scan on the unique path index: "<dir>/" <= path < "<dir>0" ('0' follows '/')
		prefix := strings.TrimRight(page.Dir, "/") + "/"
		query += " AND path >= ? AND path < ?"
		args = append(args, prefix, prefix[:len(prefix)-1]+"0")
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, page.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of artifacts per stored status
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ingest_status, COUNT(*) FROM artifacts GROUP BY ingest_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count artifacts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int, len(Statuses))
	for _, st := range Statuses {
		counts[st] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] += n
	}
	return counts, rows.Err()
}

// ErrorCount is a distinct failure message and how many artifacts carry it
type ErrorCount struct {
	Message string
	Count   int
}

// TopErrors returns the most common failure messages
func (s *Store) TopErrors(ctx context.Context, limit int) ([]ErrorCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT error, COUNT(*) AS n FROM artifacts
		WHERE ingest_status = 'failed' AND error IS NOT NULL AND error != ''
		GROUP BY error ORDER BY n DESC, error ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query errors: %w", err)
	}
	defer rows.Close()

	var out []ErrorCount
	for rows.Next() {
		var ec ErrorCount
		if err := rows.Scan(&ec.Message, &ec.Count); err != nil {
			return nil, err
		}
		out = append(out, ec)
	}
	return out, rows.Err()
}
