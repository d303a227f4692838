package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/project-copilot/internal/store"
)

// Source is the read side of the store a summary is built from
type Source interface {
	CountByStatus(ctx context.Context) (map[store.Status]int, error)
	TopErrors(ctx context.Context, limit int) ([]store.ErrorCount, error)
	ListIndexRuns(ctx context.Context, limit int) ([]*store.IndexRun, error)
	AppliedMigrations(ctx context.Context) ([]string, error)
	Capabilities() store.Capabilities
	Path() string
}

// SummaryReport is a point-in-time view of the store
type SummaryReport struct {
	GeneratedAt time.Time

	// Artifact statistics
	Total  int
	Counts map[store.Status]int

	// Store
	FullText       bool
	FullTextReason string
	Migrations     []string

	// Details
	RecentRuns []*store.IndexRun
	TopErrors  []ErrorSummary

	DatabasePath string
	EventLogPath string
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// GenerateSummaryReport gathers counts by status, the latest index runs and
// the most common error messages.
func GenerateSummaryReport(ctx context.Context, src Source, eventLogPath string) (*SummaryReport, error) {
	caps := src.Capabilities()
	report := &SummaryReport{
		GeneratedAt:    time.Now(),
		DatabasePath:   src.Path(),
		EventLogPath:   eventLogPath,
		FullText:       caps.FullText,
		FullTextReason: caps.FullTextReason,
		TopErrors:      make([]ErrorSummary, 0),
	}

	counts, err := src.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	report.Counts = counts
	for _, n := range counts {
		report.Total += n
	}

	if report.RecentRuns, err = src.ListIndexRuns(ctx, 10); err != nil {
		return nil, err
	}

	top, err := src.TopErrors(ctx, 10)
	if err != nil {
		return nil, err
	}
	for _, e := range top {
		report.TopErrors = append(report.TopErrors, ErrorSummary{Error: e.Message, Count: e.Count})
	}

	if report.Migrations, err = src.AppliedMigrations(ctx); err != nil {
		return nil, err
	}
	return report, nil
}

// RenderMarkdown formats the report as Markdown
func RenderMarkdown(report *SummaryReport) string {
	var md strings.Builder

	md.WriteString("# Project Copilot - Index Status\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	md.WriteString("## Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Artifacts | %s |\n", humanize.Comma(int64(report.Total))))
	for _, st := range store.Statuses {
		md.WriteString(fmt.Sprintf("| %s | %s |\n", st, humanize.Comma(int64(report.Counts[st]))))
	}
	search := "full-text"
	if !report.FullText {
		search = "substring"
		if report.FullTextReason != "" {
			search += " (" + report.FullTextReason + ")"
		}
	}
	md.WriteString(fmt.Sprintf("| Search mode | %s |\n", search))
	if n := len(report.Migrations); n > 0 {
		md.WriteString(fmt.Sprintf("| Schema | %s |\n", report.Migrations[n-1]))
	}
	md.WriteString("\n")

	if len(report.RecentRuns) > 0 {
		md.WriteString("## Recent Index Runs\n\n")
		md.WriteString("| Started | Mode | Directory | Seen | Indexed | Failed | Not extractable | Duration |\n")
		md.WriteString("|---------|------|-----------|------|---------|--------|-----------------|----------|\n")
		for _, r := range report.RecentRuns {
			md.WriteString(fmt.Sprintf("| %s | %s | `%s` | %d | %d | %d | %d | %s |\n",
				humanize.RelTime(r.StartedAt, report.GeneratedAt, "ago", "from now"),
				r.Mode,
				truncatePath(r.Dir, 40),
				r.FilesSeen, r.FilesIndexed, r.FilesFailed, r.FilesNotExtractable,
				r.Duration().Round(time.Millisecond)))
		}
		md.WriteString("\n")
	}

	if len(report.TopErrors) > 0 {
		md.WriteString("## Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, e := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", e.Count, strings.ReplaceAll(e.Error, "|", `\|`)))
		}
		md.WriteString("\n")
	}

	return md.String()
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(RenderMarkdown(report)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
