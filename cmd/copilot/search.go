package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/franz/project-copilot/internal/search"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search extracted text",
	Long: `Search the indexed text, filenames and paths.

With the full-text index active, results are ranked by relevance. Without
it, matching is a case-insensitive substring match and the order (shortest
snippet first) is only a stable tie-break. With no query, the most recently
updated artifacts are listed. Matches in snippets are marked with **.`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Int("limit", search.DefaultLimit, "maximum results")
	searchCmd.Flags().Int("offset", 0, "results to skip")
	searchCmd.Flags().String("ext", "", "only this extension (e.g. pdf)")
	searchCmd.Flags().String("status", "", "only this status (new, indexed, failed, not_extractable)")
	searchCmd.Flags().Bool("json", false, "print results as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	asJSON, _ := cmd.Flags().GetBool("json")

	svc := search.NewService(a.store, a.cfg.Features.SearchEnabledOr(true))
	results, err := svc.Search(ctx, search.Request{
		Query:  strings.Join(args, " "),
		Limit:  limit,
		Offset: offset,
		Filters: search.Filters{
			Ext:    mustString(cmd, "ext"),
			Status: mustString(cmd, "status"),
		},
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results")
		return nil
	}
	for i, ev := range results {
		fmt.Fprintf(out, "%d. [%d] %s  (%s", offset+i+1, ev.ArtifactID, ev.Filename, ev.Mode)
		if ev.Score != nil {
			fmt.Fprintf(out, " %.3f", *ev.Score)
		}
		fmt.Fprintf(out, ")\n   %s\n", ev.Path)
		if s := strings.Join(strings.Fields(ev.Snippet), " "); s != "" {
			fmt.Fprintf(out, "   %s\n", s)
		}
	}
	return nil
}
