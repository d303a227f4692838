package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent index runs",
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().Int("limit", 20, "number of runs to list")
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := a.store.ListIndexRuns(ctx, limit)
	if err != nil {
		return err
	}
	total, err := a.store.CountIndexRuns(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No index runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tMODE\tENV\tSEEN\tINDEXED\tFAILED\tNOT_EXTR\tFTS\tDURATION\tDIR")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%t\t%s\t%s\n",
			humanize.Time(r.StartedAt), r.Mode, r.Env,
			r.FilesSeen, r.FilesIndexed, r.FilesFailed, r.FilesNotExtractable,
			r.FullText, r.Duration().Round(time.Millisecond), r.Dir)
	}
	w.Flush()
	fmt.Fprintf(out, "\nShowing %d of %s runs\n", len(runs), humanize.Comma(int64(total)))
	return nil
}
