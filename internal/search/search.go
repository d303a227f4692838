// Package search turns store queries into evidence records for callers.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/franz/project-copilot/internal/store"
	"github.com/franz/project-copilot/internal/util"
)

const (
	DefaultLimit = 20
	MaxLimit     = 200
)

// Searcher is the read side of the artifact store
type Searcher interface {
	Search(ctx context.Context, q store.SearchQuery) ([]store.SearchRow, error)
	Capabilities() store.Capabilities
}

// Filters narrow a search. Ext accepts "pdf", ".PDF" and so on; Status
// takes a stored status name.
type Filters struct {
	Ext    string
	Status string
}

// Request is one page of a search
type Request struct {
	Query   string
	Limit   int
	Offset  int
	Filters Filters
}

// Evidence is a search result with enough context to justify the match
type Evidence struct {
	ArtifactID int64            `json:"artifact_id"`
	Type       string           `json:"type"` // extension without the dot
	Path       string           `json:"path"`
	Filename   string           `json:"filename"`
	Status     store.Status     `json:"status"`
	Snippet    string           `json:"snippet"`
	Score      *float64         `json:"score,omitempty"` // full-text only, higher is better
	Mode       store.SearchMode `json:"mode"`
}

// Service answers search requests
type Service struct {
	store   Searcher
	enabled bool
}

// NewService creates a search service. A disabled service rejects every
// request with util.ErrUnsupported.
func NewService(s Searcher, enabled bool) *Service {
	return &Service{store: s, enabled: enabled}
}

// Enabled reports whether search is available to callers
func (s *Service) Enabled() bool { return s.enabled }

// Mode is the strategy non-empty queries will use
func (s *Service) Mode() store.SearchMode {
	if s.store.Capabilities().FullText {
		return store.ModeFullText
	}
	return store.ModeLike
}

// Search runs a request. An empty query browses the most recently updated
// artifacts. Substring-mode snippets are highlighted here with the same
// delimiters the full-text engine uses.
func (s *Service) Search(ctx context.Context, req Request) ([]Evidence, error) {
	if !s.enabled {
		return nil, fmt.Errorf("search is disabled: %w", util.ErrUnsupported)
	}

	q := store.SearchQuery{
		Text:   strings.TrimSpace(req.Query),
		Limit:  clampLimit(req.Limit),
		Offset: max(req.Offset, 0),
	}
	if req.Filters.Ext != "" {
		q.Filters.Ext = util.NormalizeExt(req.Filters.Ext)
	}
	if req.Filters.Status != "" {
		st, err := store.ParseStatus(req.Filters.Status)
		if err != nil {
			return nil, err
		}
		q.Filters.Status = st
	}

	rows, err := s.store.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]Evidence, 0, len(rows))
	for _, r := range rows {
		ev := Evidence{
			ArtifactID: r.ID,
			Type:       strings.TrimPrefix(r.Ext, "."),
			Path:       r.Path,
			Filename:   r.Filename,
			Status:     r.Status,
			Snippet:    r.Snippet,
			Mode:       r.Mode,
		}
		if r.Rank != nil {
			score := -*r.Rank
			ev.Score = &score
		}
		if r.Mode == store.ModeLike {
			ev.Snippet = Highlight(r.Snippet, q.Text)
		}
		out = append(out, ev)
	}
	return out, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}
