package index

import (
	"context"
	"path/filepath"
	"time"

	"github.com/franz/project-copilot/internal/report"
	"github.com/franz/project-copilot/internal/store"
	"github.com/franz/project-copilot/internal/util"
	"github.com/google/uuid"
)

// Run modes stored on IndexRun
const (
	ModeAll         = "all"
	ModeIncremental = "incremental"
)

// Summary is the result of a batch
type Summary struct {
	Run      *store.IndexRun
	Outcomes []*Outcome
	// Skipped counts files left alone by an incremental pass
	Skipped int
}

// Counts returns the per-outcome totals
func (s *Summary) Counts() report.RunCounts {
	return report.RunCounts{
		Seen:           s.Run.FilesSeen,
		Indexed:        s.Run.FilesIndexed,
		Failed:         s.Run.FilesFailed,
		NotExtractable: s.Run.FilesNotExtractable,
	}
}

// IndexAll indexes every regular file directly in dir, including ones that
// are already indexed, and records an IndexRun. A missing directory is an
// error and records nothing. Cancellation stops between files; the partial
// run is still recorded.
func (ix *Indexer) IndexAll(ctx context.Context, dir string) (*Summary, error) {
	abs, files, err := ix.listFiles(ctx, dir)
	if err != nil {
		return nil, err
	}
	util.InfoLog("Indexing %d files in %s", len(files), abs)
	return ix.runBatch(ctx, abs, ModeAll, files, 0)
}

// IndexIncremental indexes only the NEW and DIRTY files in dir and records
// an IndexRun whose counts cover just those files.
func (ix *Indexer) IndexIncremental(ctx context.Context, dir string) (*Summary, error) {
	entries, err := ix.ScanWorkspace(ctx, dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.State.Needed() {
			paths = append(paths, e.Path)
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	util.InfoLog("Indexing %d of %d files in %s", len(paths), len(entries), abs)
	return ix.runBatch(ctx, abs, ModeIncremental, paths, len(entries)-len(paths))
}

func (ix *Indexer) runBatch(ctx context.Context, dir, mode string, paths []string, skipped int) (*Summary, error) {
	run := &store.IndexRun{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Env:       ix.env,
		Dir:       dir,
		Mode:      mode,
		FullText:  ix.store.Capabilities().FullText,
	}
	summary := &Summary{Run: run, Skipped: skipped}

	var stopErr error
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			util.WarnLog("Indexing cancelled after %d of %d files", i, len(paths))
			stopErr = err
			break
		}

		out, err := ix.IndexOne(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				stopErr = ctx.Err()
				break
			}
			// A store failure on one file does not stop the batch
			util.ErrorLog("Failed to index %s: %v", p, err)
			if out == nil {
				out = &Outcome{Path: p}
			}
			out.State = StateFailed
			out.Error = err.Error()
		}

		run.FilesSeen++
		switch out.State {
		case StateIndexed:
			run.FilesIndexed++
		case StateNotExtractable:
			run.FilesNotExtractable++
		default:
			run.FilesFailed++
		}
		summary.Outcomes = append(summary.Outcomes, out)

		if ix.progress != nil {
			ix.progress(i+1, len(paths), out)
		}
	}

	run.EndedAt = time.Now().UTC()

	// The run record is telemetry; losing it does not fail the batch
	if err := ix.store.RecordIndexRun(context.WithoutCancel(ctx), run); err != nil {
		util.ErrorLog("Failed to record index run %s: %v", run.RunID, err)
		ix.logger.LogError(report.EventRun, dir, err)
	}
	ix.logger.LogRun(run.RunID, dir, mode, summary.Counts(), run.FullText, run.Duration())

	util.SuccessLog("Indexed %d files: %d indexed, %d failed, %d not extractable",
		run.FilesSeen, run.FilesIndexed, run.FilesFailed, run.FilesNotExtractable)
	return summary, stopErr
}
