package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SearchMode is the query strategy that produced a result
type SearchMode string

const (
	ModeFullText SearchMode = "FTS"
	ModeLike     SearchMode = "LIKE"
	ModeBrowse   SearchMode = "BROWSE"
)

const (
	// HighlightOpen and HighlightClose delimit matched spans in snippets
	HighlightOpen  = "**"
	HighlightClose = "**"

	snippetTokens   = 64
	likeSnippetSize = 400
)

// SearchFilters narrow a search; zero values do not filter
type SearchFilters struct {
	Ext    string
	Status Status
}

// SearchQuery is one page of a search
type SearchQuery struct {
	Text    string
	Limit   int
	Offset  int
	Filters SearchFilters
}

// SearchRow is one matched artifact
type SearchRow struct {
	ID         int64
	Path       string
	Filename   string
	Ext        string
	Status     Status
	ModifiedAt float64
	TextLen    int
	Snippet    string
	// Rank is the engine's bm25 value (lower is more relevant); only set in full-text mode
	Rank *float64
	Mode SearchMode
}

// Search runs a query against the store.
//
// The mode is fixed by the store's capabilities, not per query: with
// full-text active every non-empty query goes through FTS5 ordered by rank;
// otherwise it is a case-insensitive substring match over filename, path and
// text, ordered by snippet length and then identity. That ordering is only a
// deterministic tie-break, not a relevance measure. An empty query lists the
// most recently updated artifacts (browse mode). Filters apply in every mode,
// and limit/offset apply after ordering.
//
// The two text modes do not match the same things. FTS5 with the unicode61
// tokenizer matches whole tokens, case-folded for all of Unicode, so a
// fragment inside a word ("llo Wor") finds nothing. LIKE matches any
// substring but SQLite folds case for ASCII letters only, so "ÄPFEL" does
// not find "äpfel".
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]SearchRow, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	text := strings.TrimSpace(q.Text)

	var (
		b    strings.Builder
		args []any
		mode SearchMode
	)

	switch {
	case text == "":
		mode = ModeBrowse
		fmt.Fprintf(&b, `
			SELECT a.id, a.path, COALESCE(a.filename, ''), COALESCE(a.ext, ''), a.ingest_status,
			       COALESCE(a.modified_at, 0), COALESCE(LENGTH(t.text), 0),
			       COALESCE(substr(t.text, 1, %d), '') AS snippet, NULL
			FROM artifacts a
			LEFT JOIN artifact_text t ON a.id = t.artifact_id
			WHERE 1 = 1`, likeSnippetSize)

	case s.caps.FullText:
		mode = ModeFullText
		fmt.Fprintf(&b, `
			SELECT a.id, a.path, COALESCE(a.filename, ''), COALESCE(a.ext, ''), a.ingest_status,
			       COALESCE(a.modified_at, 0), COALESCE(LENGTH(t.text), 0),
			       snippet(artifact_fts, 2, '%s', '%s', '...', %d) AS snippet, bm25(artifact_fts) AS rank_value
			FROM artifact_fts f
			JOIN artifacts a ON a.id = f.ref_id
			LEFT JOIN artifact_text t ON a.id = t.artifact_id
			WHERE artifact_fts MATCH ?`, HighlightOpen, HighlightClose, snippetTokens)
		args = append(args, FullTextQuery(text))

	default:
		mode = ModeLike
		fmt.Fprintf(&b, `
			SELECT a.id, a.path, COALESCE(a.filename, ''), COALESCE(a.ext, ''), a.ingest_status,
			       COALESCE(a.modified_at, 0), COALESCE(LENGTH(t.text), 0),
			       COALESCE(substr(t.text, 1, %d), '') AS snippet, NULL
			FROM artifacts a
			LEFT JOIN artifact_text t ON a.id = t.artifact_id
			WHERE (a.filename LIKE ? ESCAPE '\' OR a.path LIKE ? ESCAPE '\' OR t.text LIKE ? ESCAPE '\')`,
			likeSnippetSize)
		pattern := "%" + EscapeLike(text) + "%"
		args = append(args, pattern, pattern, pattern)
	}

	if q.Filters.Ext != "" {
		b.WriteString(" AND a.ext = ?")
		args = append(args, q.Filters.Ext)
	}
	if q.Filters.Status != "" {
		b.WriteString(" AND a.ingest_status = ?")
		args = append(args, string(q.Filters.Status))
	}

	switch mode {
	case ModeBrowse:
		b.WriteString(" ORDER BY a.updated_at DESC, a.id DESC")
	case ModeFullText:
		b.WriteString(" ORDER BY rank_value ASC, a.id ASC")
	case ModeLike:
		b.WriteString(" ORDER BY length(snippet) ASC, a.id ASC")
	}

	b.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search (%s) failed: %w", mode, err)
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		var (
			r      SearchRow
			status string
			rank   sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Path, &r.Filename, &r.Ext, &status,
			&r.ModifiedAt, &r.TextLen, &r.Snippet, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		r.Status = Status(status)
		r.Mode = mode
		if rank.Valid {
			v := rank.Float64
			r.Rank = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FullTextQuery turns free text into an FTS5 query: each whitespace
// separated token becomes a quoted phrase, so operators and punctuation in
// user input are matched literally instead of parsed. Tokens are ANDed and
// each must equal a whole indexed token; there is no prefix or infix matching.
func FullTextQuery(text string) string {
	fields := strings.Fields(text)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// EscapeLike escapes LIKE wildcards so text is matched literally with ESCAPE '\'
func EscapeLike(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(text)
}
