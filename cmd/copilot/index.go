package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/franz/project-copilot/internal/index"
	"github.com/franz/project-copilot/internal/util"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index [file]",
	Short: "Index workspace files",
	Long: `Index files of the workspace directory (non-recursive).

By default only NEW and DIRTY files are indexed. With --all every regular
file is indexed again. With a file argument just that file is indexed.
Every batch records an index run (see 'copilot runs').

Interrupting with Ctrl-C stops after the current file; the partial run is
still recorded.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().String("dir", "", "workspace directory (default: paths.ingest_dir)")
	indexCmd.Flags().Bool("all", false, "re-index every file, not just new and changed ones")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	if len(args) == 1 {
		o, err := a.indexer(filepath.Dir(args[0]), nil).IndexOne(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s  %s", o.State, o.Path)
		switch {
		case o.Error != "":
			fmt.Fprintf(out, "  (%s)", o.Error)
		case o.Reason != "":
			fmt.Fprintf(out, "  (%s)", o.Reason)
		case o.Chars > 0:
			fmt.Fprintf(out, "  %d chars via %s", o.Chars, o.Extractor)
		}
		fmt.Fprintln(out)
		return nil
	}

	dir := a.workspaceDir(mustString(cmd, "dir"))
	all, _ := cmd.Flags().GetBool("all")

	bar := newIndexProgress()
	ix := a.indexer(dir, bar.update)

	start := time.Now()
	var summary *index.Summary
	if all {
		summary, err = ix.IndexAll(ctx, dir)
	} else {
		summary, err = ix.IndexIncremental(ctx, dir)
	}
	bar.finish()
	if summary == nil {
		return err
	}

	c := summary.Counts()
	fmt.Fprintf(out, "Run %s (%s) in %v\n", summary.Run.RunID, summary.Run.Mode, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(out, "  seen: %d  indexed: %d  failed: %d  not extractable: %d", c.Seen, c.Indexed, c.Failed, c.NotExtractable)
	if summary.Skipped > 0 {
		fmt.Fprintf(out, "  unchanged: %d", summary.Skipped)
	}
	fmt.Fprintln(out)
	for _, o := range summary.Outcomes {
		if o.State == index.StateFailed {
			fmt.Fprintf(out, "  FAILED %s: %s\n", o.Path, o.Error)
		}
	}
	return err
}

// indexProgress draws a bar on a terminal and stays silent otherwise
type indexProgress struct {
	bar *progressbar.ProgressBar
	tty bool
}

func newIndexProgress() *indexProgress {
	return &indexProgress{tty: util.IsTerminal(os.Stderr.Fd()) && !util.IsQuiet()}
}

func (p *indexProgress) update(done, total int, o *index.Outcome) {
	if !p.tty {
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Indexing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	p.bar.Describe(fmt.Sprintf("Indexing | %s", o.State))
	p.bar.Set(done)
}

func (p *indexProgress) finish() {
	if p.bar != nil {
		p.bar.Finish()
	}
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
