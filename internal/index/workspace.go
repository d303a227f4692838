package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/franz/project-copilot/internal/store"
	"github.com/franz/project-copilot/internal/util"
	"github.com/sourcegraph/conc/iter"
)

// Entry is one file of a workspace scan
type Entry struct {
	Path       string
	Filename   string
	Ext        string
	SizeBytes  int64
	ModifiedAt float64
	State      State
	ArtifactID int64 // zero for NEW
	Error      string
	Supported  bool // an extractor is registered for Ext
}

// listFiles returns the absolute paths of the regular files directly in dir,
// minus those excluded by IgnoreFile or the configured patterns
func (ix *Indexer) listFiles(ctx context.Context, dir string) (string, []string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	entries, err := util.RetryableReadDir(ctx, abs, ix.retry)
	if errors.Is(err, os.ErrNotExist) {
		return abs, nil, fmt.Errorf("directory %s: %w", abs, util.ErrNotFound)
	}
	if err != nil {
		return abs, nil, fmt.Errorf("failed to read directory %s: %w", abs, err)
	}

	rules := loadIgnoreRules(abs, ix.exclude)
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if rules.excluded(e.Name()) {
			util.DebugLog("Ignoring %s", e.Name())
			continue
		}
		files = append(files, filepath.Join(abs, e.Name()))
	}
	return abs, files, nil
}

// storedUnder pages through the store's records under dir, chunkSize at a time
func (ix *Indexer) storedUnder(ctx context.Context, dir string) (map[string]*store.Artifact, error) {
	known := make(map[string]*store.Artifact)
	var after int64
	for {
		page, err := ix.store.ListArtifacts(ctx, store.ArtifactPage{Dir: dir, AfterID: after, Limit: ix.chunkSize})
		if err != nil {
			return nil, err
		}
		for _, a := range page {
			if filepath.Dir(a.Path) == dir {
				known[a.Path] = a
			}
			after = a.ID
		}
		if len(page) < ix.chunkSize {
			return known, nil
		}
	}
}

// ScanWorkspace diffs the files directly in dir against the store. A file
// the store has never seen is NEW; one whose size differs, or whose mtime
// differs by more than DirtyTolerance, is DIRTY; anything else carries its
// stored status. Files that vanish during the scan are skipped.
func (ix *Indexer) ScanWorkspace(ctx context.Context, dir string) ([]Entry, error) {
	abs, files, err := ix.listFiles(ctx, dir)
	if err != nil {
		return nil, err
	}

	type statResult struct {
		facts *util.FileFacts
		err   error
	}
	stats := iter.Mapper[string, statResult]{MaxGoroutines: ix.concurrency}.Map(files, func(p *string) statResult {
		f, err := util.StatFile(*p)
		return statResult{facts: f, err: err}
	})

	known, err := ix.storedUnder(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored artifacts: %w", err)
	}

	entries := make([]Entry, 0, len(stats))
	var newCount, dirty int
	for i, st := range stats {
		if st.err != nil {
			util.DebugLog("Skipping %s: %v", files[i], st.err)
			continue
		}
		f := st.facts
		_, supported := ix.registry.Get(f.Ext)
		e := Entry{
			Path:       f.Path,
			Filename:   f.Filename,
			Ext:        f.Ext,
			SizeBytes:  f.SizeBytes,
			ModifiedAt: f.ModifiedAt,
			Supported:  supported,
		}

		a, ok := known[f.Path]
		switch {
		case !ok:
			e.State = StateNew
			newCount++
		case a.SizeBytes != f.SizeBytes || util.TimesDiffer(a.ModifiedAt, f.ModifiedAt, DirtyTolerance):
			e.State = StateDirty
			dirty++
		default:
			e.State = StateFromStatus(a.Status)
		}
		if ok {
			e.ArtifactID = a.ID
			e.Error = a.Error
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Filename < entries[j].Filename })
	ix.logger.LogScan(abs, len(entries), newCount, dirty)
	return entries, nil
}

// IndexNeeded returns the NEW and DIRTY entries of a workspace scan
func (ix *Indexer) IndexNeeded(ctx context.Context, dir string) ([]Entry, error) {
	entries, err := ix.ScanWorkspace(ctx, dir)
	if err != nil {
		return nil, err
	}
	needed := entries[:0]
	for _, e := range entries {
		if e.State.Needed() {
			needed = append(needed, e)
		}
	}
	return needed, nil
}
