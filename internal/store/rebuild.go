package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/franz/project-copilot/internal/util"
)

// RebuildStep names one phase of a table rebuild
type RebuildStep string

const (
	StepDetect    RebuildStep = "detect"
	StepStage     RebuildStep = "stage"
	StepTransform RebuildStep = "transform"
	StepSwap      RebuildStep = "swap"
	StepCleanup   RebuildStep = "cleanup"
)

// RebuildSteps is the fixed order a plan executes in
var RebuildSteps = []RebuildStep{StepDetect, StepStage, StepTransform, StepSwap, StepCleanup}

// Legacy column aliases, in order of preference
var (
	identityAliases = []string{"id", "artifact_id"}
	pathAliases     = []string{"path", "source_uri", "source"}
	hashAliases     = []string{"sha256", "content_hash"}
	timeAliases     = []string{"updated_at", "created_at"}
)

// legacyDiscriminator is a column from an older layout that has no canonical home
const legacyDiscriminator = "source_type"

// RebuildPlan describes how to convert an existing table into its canonical
// shape: the table is copied into a freshly created stage table (deduplicated
// where needed), the original is dropped, and the stage is renamed into place.
// A plan is pure data; detection never touches the database.
type RebuildPlan struct {
	Table   string
	Stage   string
	Reasons []string
	// Source maps canonical column name to the existing column it is read from.
	// Canonical columns with no source are left NULL (or default).
	Source map[string]string
}

// Steps returns the steps the plan runs
func (p *RebuildPlan) Steps() []RebuildStep {
	return RebuildSteps
}

func (p *RebuildPlan) String() string {
	return fmt.Sprintf("rebuild %s (%s)", p.Table, strings.Join(p.Reasons, "; "))
}

func firstPresent(shape TableShape, aliases []string) string {
	for _, a := range aliases {
		if shape.Has(a) {
			return a
		}
	}
	return ""
}

// PlanArtifactsRebuild inspects the artifacts table shape and returns a plan
// when it is a legacy layout, or nil when additive changes are enough.
func PlanArtifactsRebuild(shape TableShape) (*RebuildPlan, error) {
	if !shape.Exists {
		return nil, nil
	}

	var reasons []string

	pk := shape.PrimaryKey()
	if len(pk) != 1 || !strings.EqualFold(pk[0], "id") {
		reasons = append(reasons, fmt.Sprintf("primary key is (%s), want (id)", strings.Join(pk, ", ")))
	}
	if shape.Has(legacyDiscriminator) {
		reasons = append(reasons, "legacy column "+legacyDiscriminator)
	}
	if !shape.Has("path") {
		reasons = append(reasons, "no path column")
	}
	if len(shape.UniqueOn("path")) == 0 {
		reasons = append(reasons, "no unique index on (path)")
	}
	for _, idx := range shape.Indexes {
		if idx.Unique && idx.Origin == "u" && !sameColumns(idx.Columns, []string{"path"}) {
			reasons = append(reasons, fmt.Sprintf("unique constraint on (%s)", strings.Join(idx.Columns, ", ")))
		}
	}

	if len(reasons) == 0 {
		return nil, nil
	}

	src := map[string]string{
		"id":     firstPresent(shape, identityAliases),
		"path":   firstPresent(shape, pathAliases),
		"sha256": firstPresent(shape, hashAliases),
	}
	if len(pk) == 1 && !strings.EqualFold(pk[0], "id") && isIntegerKey(shape, pk[0]) {
		src["id"] = pk[0]
	}
	if src["id"] == "" {
		src["id"] = "rowid"
	}
	if src["path"] == "" {
		return nil, fmt.Errorf("%w: artifacts has no path-equivalent column (tried %s)",
			util.ErrMigration, strings.Join(pathAliases, ", "))
	}
	for _, c := range artifactColumns {
		if _, mapped := src[c.name]; !mapped && shape.Has(c.name) {
			src[c.name] = c.name
		}
	}
	if t := firstPresent(shape, timeAliases); t != "" {
		src["_timestamp"] = t
	}

	return &RebuildPlan{
		Table:   tableArtifacts,
		Stage:   tableArtifacts + "__rebuild",
		Reasons: reasons,
		Source:  src,
	}, nil
}

func isIntegerKey(shape TableShape, name string) bool {
	for _, c := range shape.Columns {
		if strings.EqualFold(c.Name, name) {
			return strings.Contains(strings.ToUpper(c.Type), "INT")
		}
	}
	return false
}

// PlanTextRebuild returns a plan when artifact_text does not reference artifacts(id)
func PlanTextRebuild(shape TableShape) *RebuildPlan {
	if !shape.Exists {
		return nil
	}
	for _, fk := range shape.ForeignKeys {
		if fk.Table == tableArtifacts && fk.From == "artifact_id" && fk.To == "id" {
			return nil
		}
	}

	src := map[string]string{}
	for _, c := range textColumns {
		if shape.Has(c.name) {
			src[c.name] = c.name
		}
	}
	return &RebuildPlan{
		Table:   tableText,
		Stage:   tableText + "__rebuild",
		Reasons: []string{"foreign key does not reference artifacts(id)"},
		Source:  src,
	}
}

// Run executes the plan inside tx. Foreign key enforcement must already be
// off on the connection, since the swap drops a referenced table.
func (p *RebuildPlan) Run(ctx context.Context, tx *sql.Tx) (int, error) {
	var copied int
	for _, step := range p.Steps() {
		var err error
		switch step {
		case StepDetect:
			_, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", p.Stage))
		case StepStage:
			_, err = tx.ExecContext(ctx, p.stageDDL())
		case StepTransform:
			copied, err = p.transform(ctx, tx)
		case StepSwap:
			if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", p.Table)); err == nil {
				_, err = tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", p.Stage, p.Table))
			}
		case StepCleanup:
			err = p.cleanup(ctx, tx)
		}
		if err != nil {
			return copied, fmt.Errorf("%s: %s step failed: %w", p.Table, step, err)
		}
	}
	return copied, nil
}

func (p *RebuildPlan) stageDDL() string {
	if p.Table == tableText {
		return textDDL(p.Stage)
	}
	return artifactsDDL(p.Stage)
}

func (p *RebuildPlan) transform(ctx context.Context, tx *sql.Tx) (int, error) {
	if p.Table == tableText {
		return p.copyText(ctx, tx)
	}
	return p.copyArtifacts(ctx, tx)
}

func (p *RebuildPlan) cleanup(ctx context.Context, tx *sql.Tx) error {
	if p.Table != tableArtifacts {
		return nil
	}
	keyed, err := textKeyedByArtifact(ctx, tx)
	if err != nil || !keyed {
		return err
	}
	// Text rows of merged-away identities have nothing to point at any more
	_, err = tx.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE artifact_id NOT IN (SELECT id FROM %s)", tableText, tableArtifacts))
	return err
}

// textKeyedByArtifact reports whether the current text table exists and has
// an artifact_id column. Older layouts keyed text differently; the text
// table's own plan deals with those.
func textKeyedByArtifact(ctx context.Context, q querier) (bool, error) {
	shape, err := inspectTable(ctx, q, tableText)
	if err != nil {
		return false, err
	}
	return shape.Exists && shape.Has("artifact_id"), nil
}

// rekeyText moves each merge winner's extracted text onto the surviving
// identity of its group. moved maps survivor identity to the winner's
// original identity.
func rekeyText(ctx context.Context, tx *sql.Tx, moved map[int64]int64) error {
	if len(moved) == 0 {
		return nil
	}
	keyed, err := textKeyedByArtifact(ctx, tx)
	if err != nil || !keyed {
		return err
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE artifact_id = ?", tableText)
	upd := fmt.Sprintf("UPDATE %s SET artifact_id = ? WHERE artifact_id = ?", tableText)
	for survivor, winner := range moved {
		if _, err := tx.ExecContext(ctx, del, survivor); err != nil {
			return fmt.Errorf("failed to drop superseded text of %d: %w", survivor, err)
		}
		if _, err := tx.ExecContext(ctx, upd, survivor, winner); err != nil {
			return fmt.Errorf("failed to move text of %d to %d: %w", winner, survivor, err)
		}
	}
	return nil
}

// legacyArtifact is one artifacts row read through the plan's column mapping
type legacyArtifact struct {
	ID         int64
	Path       string
	Hash       sql.NullString
	Timestamp  sql.NullString
	Filename   sql.NullString
	Ext        sql.NullString
	SizeBytes  sql.NullInt64
	ModifiedAt sql.NullFloat64
	Status     sql.NullString
	Error      sql.NullString
	UpdatedAt  sql.NullString
	CreatedAt  sql.NullString
}

// preferLegacyRow reports whether a should be kept over b when both carry the
// same path: the greater hash in natural string order wins (a known hash beats
// none), then the greater identity, then the later timestamp.
func preferLegacyRow(a, b legacyArtifact) bool {
	if a.Hash.Valid != b.Hash.Valid {
		return a.Hash.Valid
	}
	if a.Hash.String != b.Hash.String {
		return a.Hash.String > b.Hash.String
	}
	if a.ID != b.ID {
		return a.ID > b.ID
	}
	return a.Timestamp.String > b.Timestamp.String
}

// dedupeByPath collapses rows sharing a path into one. The survivor carries
// the winning row's values and the greatest identity of its group, so
// identities already handed out are never reassigned to another path.
// The result is ordered by identity. moved maps each survivor identity that
// differs from its winner's original identity to that original identity.
func dedupeByPath(rows []legacyArtifact) (out []legacyArtifact, moved map[int64]int64) {
	best := make(map[string]legacyArtifact, len(rows))
	maxID := make(map[string]int64, len(rows))
	var order []string

	for _, r := range rows {
		cur, seen := best[r.Path]
		if !seen {
			order = append(order, r.Path)
			best[r.Path] = r
			maxID[r.Path] = r.ID
			continue
		}
		if preferLegacyRow(r, cur) {
			best[r.Path] = r
		}
		if r.ID > maxID[r.Path] {
			maxID[r.Path] = r.ID
		}
	}

	out = make([]legacyArtifact, 0, len(order))
	moved = make(map[int64]int64)
	for _, path := range order {
		r := best[path]
		if r.ID != maxID[path] {
			moved[maxID[path]] = r.ID
			r.ID = maxID[path]
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, moved
}

func (p *RebuildPlan) selectExpr(canonical string) string {
	if src, ok := p.Source[canonical]; ok && src != "" {
		return src
	}
	return "NULL"
}

func (p *RebuildPlan) copyArtifacts(ctx context.Context, tx *sql.Tx) (int, error) {
	idExpr := p.selectExpr("id")
	if idExpr != "rowid" {
		idExpr = fmt.Sprintf("COALESCE(%s, rowid)", idExpr)
	}
	// Older layouts stored numbers as text; CAST keeps a stray value from failing the copy
	query := fmt.Sprintf(`SELECT %s, %s, %s, %s, %s, %s, CAST(%s AS INTEGER), CAST(%s AS REAL), %s, %s, %s, %s FROM %s WHERE %s IS NOT NULL`,
		idExpr, p.selectExpr("path"), p.selectExpr("sha256"), p.selectExpr("_timestamp"),
		p.selectExpr("filename"), p.selectExpr("ext"), p.selectExpr("size_bytes"), p.selectExpr("modified_at"),
		p.selectExpr("ingest_status"), p.selectExpr("error"), p.selectExpr("updated_at"), p.selectExpr("created_at"),
		p.Table, p.selectExpr("path"))

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return 0, err
	}
	var legacy []legacyArtifact
	for rows.Next() {
		var r legacyArtifact
		if err := rows.Scan(&r.ID, &r.Path, &r.Hash, &r.Timestamp, &r.Filename, &r.Ext,
			&r.SizeBytes, &r.ModifiedAt, &r.Status, &r.Error, &r.UpdatedAt, &r.CreatedAt); err != nil {
			rows.Close()
			return 0, err
		}
		legacy = append(legacy, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, path, filename, ext, size_bytes, modified_at, sha256,
		                ingest_status, error, updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, %s))`, p.Stage, sqlNow))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	merged, moved := dedupeByPath(legacy)
	for _, r := range merged {
		status := StatusNew
		if r.Status.Valid {
			if st, err := ParseStatus(r.Status.String); err == nil {
				status = st
			}
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Path, r.Filename, r.Ext, r.SizeBytes, r.ModifiedAt,
			r.Hash, string(status), r.Error, r.UpdatedAt, r.CreatedAt); err != nil {
			return 0, fmt.Errorf("failed to copy %s: %w", r.Path, err)
		}
	}

	if err := rekeyText(ctx, tx, moved); err != nil {
		return 0, err
	}

	if dropped := len(legacy) - len(merged); dropped > 0 {
		util.WarnLog("Merged %d duplicate artifact rows while rebuilding %s", dropped, p.Table)
	}
	return len(merged), nil
}

func (p *RebuildPlan) copyText(ctx context.Context, tx *sql.Tx) (int, error) {
	if _, ok := p.Source["artifact_id"]; !ok {
		util.WarnLog("%s has no artifact_id column; extracted text is discarded", p.Table)
		return 0, nil
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (artifact_id, text, extracted_at, extractor, chars)
		SELECT artifact_id, %s, %s, %s, %s FROM %s
		WHERE artifact_id IN (SELECT id FROM %s)`,
		p.Stage, p.selectExpr("text"), p.selectExpr("extracted_at"), p.selectExpr("extractor"),
		p.selectExpr("chars"), p.Table, tableArtifacts))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
