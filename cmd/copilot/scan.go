package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/project-copilot/internal/index"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Show the index state of every workspace file",
	Long: `Compare the files of the workspace directory (non-recursive) against
the store and print each file's state:

  NEW              never indexed
  DIRTY            size or modification time changed since it was indexed
  INDEXED          text extracted and searchable
  FAILED           last attempt failed
  NOT_EXTRACTABLE  no text could be extracted

Nothing is written to the store.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("dir", "", "workspace directory (default: paths.ingest_dir)")
	scanCmd.Flags().Bool("needed", false, "only list NEW and DIRTY files")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.workspaceDir(mustString(cmd, "dir"))
	needed, _ := cmd.Flags().GetBool("needed")

	ix := a.indexer(dir, nil)
	var entries []index.Entry
	if needed {
		entries, err = ix.IndexNeeded(ctx, dir)
	} else {
		entries, err = ix.ScanWorkspace(ctx, dir)
	}
	if err != nil {
		return err
	}

	counts := map[index.State]int{}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tSIZE\tMODIFIED\tFILE")
	for _, e := range entries {
		counts[e.State]++
		name := e.Filename
		if !e.Supported {
			name += " (unsupported)"
		}
		modified := time.Unix(0, int64(e.ModifiedAt*float64(time.Second)))
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.State, humanize.Bytes(uint64(e.SizeBytes)), humanize.Time(modified), name)
	}
	w.Flush()

	fmt.Fprintf(cmd.OutOrStdout(), "\n%d files: %d new, %d dirty, %d indexed, %d failed, %d not extractable\n",
		len(entries), counts[index.StateNew], counts[index.StateDirty], counts[index.StateIndexed],
		counts[index.StateFailed], counts[index.StateNotExtractable])
	return nil
}
