package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/franz/project-copilot/internal/config"
	"github.com/franz/project-copilot/internal/extract"
	"github.com/franz/project-copilot/internal/index"
	"github.com/franz/project-copilot/internal/report"
	"github.com/franz/project-copilot/internal/store"
	"github.com/franz/project-copilot/internal/util"
	"github.com/spf13/viper"
)

const defaultConcurrency = 8

// app bundles what a command needs after startup
type app struct {
	cfg    *config.Config
	store  *store.Store
	logger *report.EventLogger
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{File: cfgFile, Dir: cfgDir})
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	util.DebugLog("Configuration: %s (env %s)", strings.Join(cfg.Sources, ", "), cfg.Env)
	return cfg, nil
}

func eventLevel() report.EventLevel {
	switch {
	case viper.GetString("event_level") != "":
		return report.ParseLevel(viper.GetString("event_level"))
	case viper.GetBool("quiet"):
		return report.LevelWarning
	case viper.GetBool("verbose"):
		return report.LevelDebug
	}
	return report.LevelInfo
}

// openApp loads the configuration, opens (and upgrades) the store, and
// starts the event log under paths.logs_dir.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := report.NewEventLogger(cfg.Paths.LogsDir, eventLevel())
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		logger = report.NullLogger()
	}

	opts := store.DefaultOpenOptions()
	opts.FullText = cfg.Features.FTS()
	db, err := store.OpenWithOptions(ctx, cfg.Paths.DBPath, opts)
	if err != nil {
		logger.LogError(report.EventMigrate, cfg.Paths.DBPath, err)
		logger.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logMigration(db, logger)
	return &app{cfg: cfg, store: db, logger: logger}, nil
}

func logMigration(db *store.Store, logger *report.EventLogger) {
	rec := db.LastReconcile()
	for _, r := range rec.Rebuilt {
		logger.LogMigrate("rebuild", r)
	}
	for _, c := range rec.AddedColumns {
		logger.LogMigrate("add_column", c)
	}
	for _, i := range rec.DroppedIndexes {
		logger.LogMigrate("drop_index", i)
	}
	if rec.RepairedRows > 0 {
		logger.LogMigrate("repair", fmt.Sprintf("%d rows", rec.RepairedRows))
	}
	if caps := db.Capabilities(); !caps.FullText {
		logger.LogMigrate("fulltext_unavailable", caps.FullTextReason)
	}
}

func (a *app) Close() {
	a.store.Close()
	a.logger.Close()
}

func (a *app) registry() *extract.Registry {
	return extract.NewRegistry(a.cfg, extract.ProbeBinaries(a.cfg))
}

// indexer builds an indexer tuned for the filesystem dir lives on
func (a *app) indexer(dir string, progress index.ProgressFunc) *index.Indexer {
	tuning := util.TuneForPath(dir, defaultConcurrency)
	util.DebugLog("Workspace I/O: %s", tuning)
	return index.New(&index.Config{
		Store:       a.store,
		Registry:    a.registry(),
		Logger:      a.logger,
		Env:         a.cfg.Env,
		ChunkSize:   a.cfg.Indexing.ChunkSize(),
		HashContent: a.cfg.Indexing.HashContent,
		Concurrency: tuning.Concurrency,
		Retry:       tuning.Retry,
		Exclude:     a.cfg.Indexing.Exclude,
		Progress:    progress,
	})
}

// workspaceDir returns the --dir flag value or the configured ingest directory
func (a *app) workspaceDir(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.Paths.IngestDir
}
