package main

import (
	"context"
	"fmt"

	"github.com/franz/project-copilot/internal/report"
	"github.com/franz/project-copilot/internal/util"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a status report of the store",
	Long: `Generate a Markdown status report.

The report includes:
- Artifact counts by status
- The active search mode and schema version
- The latest index runs
- The most common extraction errors

The report is printed to stdout unless --out names a file.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("out", "", "write the report to this file")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	util.DebugLog("Analyzing %s", a.store.Path())
	summary, err := report.GenerateSummaryReport(ctx, a.store, a.logger.Path())
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	outputPath := mustString(cmd, "out")
	if outputPath == "" {
		fmt.Fprint(cmd.OutOrStdout(), report.RenderMarkdown(summary))
		return nil
	}

	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return err
	}
	util.SuccessLog("Report saved to: %s", outputPath)
	return nil
}
