// Package index drives extraction for files in a workspace directory and
// records the outcome of each attempt in the store.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/franz/project-copilot/internal/extract"
	"github.com/franz/project-copilot/internal/report"
	"github.com/franz/project-copilot/internal/store"
	"github.com/franz/project-copilot/internal/util"
)

// Store is the subset of the artifact store the indexer writes through
type Store interface {
	UpsertArtifact(ctx context.Context, meta store.ArtifactMeta) (int64, error)
	SetStatus(ctx context.Context, id int64, status store.Status, errMsg string) error
	SaveExtractedText(ctx context.Context, id int64, text, extractor string, chars int, filename, path string) error
	ListArtifacts(ctx context.Context, page store.ArtifactPage) ([]*store.Artifact, error)
	RecordIndexRun(ctx context.Context, run *store.IndexRun) error
	Capabilities() store.Capabilities
}

// DirtyTolerance absorbs filesystem timestamp jitter when comparing mtimes
const DirtyTolerance = 100 * time.Millisecond

// ProgressFunc is called after each file of a batch
type ProgressFunc func(done, total int, outcome *Outcome)

// Indexer runs single-file and batch indexing
type Indexer struct {
	store       Store
	registry    *extract.Registry
	logger      *report.EventLogger
	env         string
	chunkSize   int
	hash        bool
	concurrency int
	retry       *util.RetryConfig
	exclude     []string
	progress    ProgressFunc
}

// Config holds indexer configuration
type Config struct {
	Store    Store
	Registry *extract.Registry
	Logger   *report.EventLogger
	Env      string
	// ChunkSize bounds each store page fetched by ScanWorkspace
	ChunkSize int
	// HashContent computes sha256 of each indexed file
	HashContent bool
	// Concurrency bounds parallel stat calls during a scan
	Concurrency int
	// Retry governs directory listing; nil uses util.DefaultRetryConfig
	Retry *util.RetryConfig
	// Exclude holds glob patterns of file names that batches and scans skip,
	// in addition to the workspace's IgnoreFile
	Exclude  []string
	Progress ProgressFunc
}

// New creates a new Indexer
func New(cfg *Config) *Indexer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 500
	}

	return &Indexer{
		store:       cfg.Store,
		registry:    cfg.Registry,
		logger:      cfg.Logger,
		env:         cfg.Env,
		chunkSize:   cfg.ChunkSize,
		hash:        cfg.HashContent,
		concurrency: cfg.Concurrency,
		retry:       cfg.Retry,
		exclude:     cfg.Exclude,
		progress:    cfg.Progress,
	}
}

// Outcome is the result of indexing one file
type Outcome struct {
	Path       string
	ArtifactID int64 // zero when the store was not touched
	State      State
	Extractor  string
	Chars      int
	Error      string
	Reason     string // diagnostic detail for NOT_EXTRACTABLE, from extractor metadata
	Duration   time.Duration
}

// IndexOne indexes a single file. Extraction problems never surface as an
// error; they are recorded as FAILED or NOT_EXTRACTABLE. The returned error
// is reserved for store failures and cancellation.
func (ix *Indexer) IndexOne(ctx context.Context, path string) (*Outcome, error) {
	start := time.Now()
	out, err := ix.indexOne(ctx, path)
	if out != nil {
		out.Duration = time.Since(start)
		ix.logger.LogIndex(out.ArtifactID, out.Path, string(out.State), out.Extractor, out.Reason, out.Chars, out.Duration, out.Error)
	}
	if err != nil {
		ix.logger.LogError(report.EventIndex, path, err)
	}
	return out, err
}

func (ix *Indexer) indexOne(ctx context.Context, path string) (*Outcome, error) {
	facts, err := util.StatFile(path)
	if err != nil {
		// Vanished or not a regular file: report without touching the store
		util.WarnLog("Skipping %s: %v", path, err)
		return &Outcome{Path: path, State: StateFailed, Error: err.Error()}, nil
	}
	out := &Outcome{Path: facts.Path}

	meta := store.ArtifactMeta{
		Path:       facts.Path,
		Filename:   facts.Filename,
		Ext:        facts.Ext,
		SizeBytes:  facts.SizeBytes,
		ModifiedAt: facts.ModifiedAt,
	}
	if ix.hash {
		if sum, err := util.GenerateContentHash(facts.Path); err == nil {
			meta.SHA256 = sum
		} else {
			util.WarnLog("Failed to hash %s: %v", facts.Path, err)
		}
	}

	id, err := ix.store.UpsertArtifact(ctx, meta)
	if err != nil {
		return out, err
	}
	out.ArtifactID = id

	ex, ok := ix.registry.Get(facts.Ext)
	if !ok {
		out.State = StateNotExtractable
		out.Reason = "no extractor for " + facts.Ext
		return out, ix.store.SetStatus(ctx, id, store.StatusNotExtractable, "")
	}
	out.Extractor = ex.Name()

	res, err := safeExtract(ctx, ex, facts.Path)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return out, err
		}
		out.State = StateFailed
		out.Error = err.Error()
		return out, ix.store.SetStatus(ctx, id, store.StatusFailed, out.Error)
	}

	// blank text is never indexed, whichever extractor produced it
	if res.Found && strings.TrimSpace(res.Content) == "" {
		res = extract.Absent(extract.ReasonNoText)
	}

	switch {
	case res.Found:
		out.Chars = utf8.RuneCountInString(res.Content)
		if err := ix.store.SaveExtractedText(ctx, id, res.Content, ex.Name(), out.Chars, facts.Filename, facts.Path); err != nil {
			return out, err
		}
		out.State = StateIndexed
	case res.Error != "":
		out.State = StateFailed
		out.Error = res.Error
		return out, ix.store.SetStatus(ctx, id, store.StatusFailed, res.Error)
	default:
		out.State = StateNotExtractable
		out.Reason = res.Reason()
		return out, ix.store.SetStatus(ctx, id, store.StatusNotExtractable, "")
	}
	return out, nil
}

// safeExtract turns an extractor panic into an error
func safeExtract(ctx context.Context, ex extract.Extractor, path string) (res extract.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s extractor panicked: %v", ex.Name(), r)
		}
	}()
	return ex.Extract(ctx, path)
}
