package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/project-copilot/internal/config"
	"github.com/franz/project-copilot/internal/extract"
	"github.com/franz/project-copilot/internal/store"
	"github.com/franz/project-copilot/internal/util"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure copilot can operate correctly.

This command checks:
- Configuration loading and validation
- SQLite version and full-text (FTS5) support
- Database accessibility and integrity
- Workspace, processed and logs directories (readable and writable)
- OCR tools (tesseract, pdftoppm) when OCR is enabled
- Whether the workspace sits on a network filesystem
- Disk space availability

Use this command to troubleshoot issues before indexing.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== Copilot Doctor - System Diagnostics ===")

	cfg, err := loadConfig()
	if err != nil {
		printResults([]checkResult{{name: "Configuration", error: true, message: err.Error()}})
		return fmt.Errorf("system diagnostics failed")
	}

	results := runChecks(cmd.Context(), cfg, extract.ProbeBinaries(cfg))
	if !printResults(results) {
		return fmt.Errorf("system diagnostics failed")
	}
	return nil
}

// runChecks runs every check concurrently; results keep a fixed order
func runChecks(ctx context.Context, cfg *config.Config, bins extract.Binaries) []checkResult {
	if ctx == nil {
		ctx = context.Background()
	}
	checks := []func(context.Context) checkResult{
		func(context.Context) checkResult {
			return checkResult{name: "Configuration", message: strings.Join(cfg.Sources, ", ") + " (env " + cfg.Env + ")"}
		},
		func(context.Context) checkResult { return checkSQLite() },
		func(context.Context) checkResult { return checkFullText(cfg.Features.FTS()) },
		func(ctx context.Context) checkResult { return checkDatabase(ctx, cfg.Paths.DBPath, cfg.Features.FTS()) },
		func(context.Context) checkResult { return checkDirectory("Ingest directory", cfg.Paths.IngestDir) },
		func(context.Context) checkResult { return checkDirectory("Processed directory", cfg.Paths.ProcessedDir) },
		func(context.Context) checkResult { return checkDirectory("Logs directory", cfg.Paths.LogsDir) },
		func(ctx context.Context) checkResult {
			return checkTool(ctx, extract.Tesseract, bins[extract.Tesseract], cfg.Features.Extraction.OCREnabled())
		},
		func(ctx context.Context) checkResult {
			return checkTool(ctx, extract.Poppler, bins[extract.Poppler], cfg.Features.Extraction.OCREnabled() && cfg.Features.Extraction.PDFEnabled())
		},
		func(context.Context) checkResult { return checkWorkspaceFilesystem(cfg.Paths.IngestDir) },
		func(context.Context) checkResult { return checkDiskSpace(cfg.Paths.IngestDir, "workspace") },
	}

	results := make([]checkResult, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, check := range checks {
		g.Go(func() error {
			results[i] = check(gctx)
			return nil
		})
	}
	g.Wait()
	return results
}

// printResults logs each result and reports whether none failed
func printResults(results []checkResult) bool {
	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some critical checks failed. Please resolve errors before indexing.")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("All checks passed!")
	}
	return !hasErrors
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkFullText verifies the engine can build the full-text index
func checkFullText(enabled bool) checkResult {
	switch {
	case !enabled:
		return checkResult{name: "Full-text search", message: "disabled by configuration (substring search)"}
	case !store.FullTextSupported():
		return checkResult{name: "Full-text search", warning: true, message: "FTS5 unavailable, falling back to substring search"}
	}
	return checkResult{name: "Full-text search", message: "FTS5 available"}
}

// checkDatabase verifies database file accessibility
func checkDatabase(ctx context.Context, dbPath string, fullText bool) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			error:   true,
			message: "paths.db_path is not set",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	opts := store.DefaultOpenOptions()
	opts.FullText = fullText
	db, err := store.OpenWithOptions(ctx, dbPath, opts)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(ctx); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	counts, _ := db.CountByStatus(ctx)
	total := 0
	for _, n := range counts {
		total += n
	}

	return checkResult{
		name: "Database",
		message: fmt.Sprintf("%s (%s, %d artifacts, %d indexed)",
			dbPath, humanize.Bytes(uint64(info.Size())), total, counts[store.StatusIndexed]),
	}
}

// checkDirectory verifies a configured directory exists and is writable
func checkDirectory(name, path string) checkResult {
	if path == "" {
		return checkResult{name: name, error: true, message: "not configured"}
	}

	info, err := os.Stat(path)
	if err != nil {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}
	if !info.IsDir() {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}

	testFile := filepath.Join(path, ".copilot_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    name,
		message: fmt.Sprintf("%s (%d entries, writable)", path, len(entries)),
	}
}

// checkTool reports an OCR binary; a missing one only matters when needed
func checkTool(ctx context.Context, name, path string, needed bool) checkResult {
	if path == "" {
		if needed {
			return checkResult{name: name, warning: true, message: "not found (OCR will report binaries missing)"}
		}
		return checkResult{name: name, message: "not found (not needed)"}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-v").CombinedOutput()
	version := "unknown version"
	if err == nil {
		if line, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n"); line != "" {
			version = line
		}
	}
	return checkResult{name: name, message: fmt.Sprintf("%s (%s)", path, version)}
}

// checkWorkspaceFilesystem reports whether the workspace is network-mounted
func checkWorkspaceFilesystem(path string) checkResult {
	if _, err := util.DetectNetworkFilesystem(path); err != nil {
		return checkResult{name: "Workspace filesystem", warning: true, message: err.Error()}
	}
	return checkResult{name: "Workspace filesystem", message: util.TuneForPath(path, defaultConcurrency).String()}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))
	usedPercent := float64(usedBytes) / float64(totalBytes) * 100

	// Warn if less than 1GB available or >95% used
	warning := false
	warningMsg := ""
	if availBytes < 1<<30 {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 95 {
		warning = true
		warningMsg = " (>95% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", humanize.IBytes(availBytes), warningMsg),
	}
}
