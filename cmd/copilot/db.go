package main

import (
	"context"
	"fmt"

	"github.com/franz/project-copilot/internal/util"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or upgrade the store and exit",
	Long: `Create the database if needed, apply pending migrations, converge any
older table layout to the current one, and create or drop the full-text
index to match features.fts_enabled. Safe to run repeatedly.`,
	RunE: runDBInit,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbInitCmd)
}

func runDBInit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	applied, err := a.store.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	rec := a.store.LastReconcile()
	caps := a.store.Capabilities()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database: %s\n", a.store.Path())
	fmt.Fprintf(out, "Migrations: %d applied\n", len(applied))
	for _, v := range applied {
		fmt.Fprintf(out, "  %s\n", v)
	}
	if rec.Changed() {
		fmt.Fprintf(out, "Reconciled: %d rebuilt, %d rows copied, %d columns added, %d indexes dropped, %d rows repaired\n",
			len(rec.Rebuilt), rec.RowsCopied, len(rec.AddedColumns), len(rec.DroppedIndexes), rec.RepairedRows)
	}
	if caps.FullText {
		fmt.Fprintln(out, "Search: full-text")
	} else {
		fmt.Fprintf(out, "Search: substring (%s)\n", caps.FullTextReason)
	}

	util.SuccessLog("Database ready")
	return nil
}
