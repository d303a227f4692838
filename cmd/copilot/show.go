package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/project-copilot/internal/store"
	"github.com/franz/project-copilot/internal/util"
	"github.com/spf13/cobra"
)

// previewChars bounds the text printed by show
const previewChars = 5000

var showCmd = &cobra.Command{
	Use:   "show <id|path>",
	Short: "Show an artifact and a preview of its text",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().Int("chars", previewChars, "characters of extracted text to print")
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	art, err := lookupArtifact(ctx, a.store, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %d\n", art.ID)
	fmt.Fprintf(out, "Path:      %s\n", art.Path)
	fmt.Fprintf(out, "Type:      %s\n", art.Ext)
	fmt.Fprintf(out, "Size:      %s\n", humanize.Bytes(uint64(art.SizeBytes)))
	fmt.Fprintf(out, "Modified:  %s\n", time.Unix(int64(art.ModifiedAt), 0).Format(time.RFC3339))
	fmt.Fprintf(out, "Status:    %s\n", art.Status)
	if art.SHA256 != "" {
		fmt.Fprintf(out, "SHA256:    %s\n", art.SHA256)
	}
	if art.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", art.Error)
	}
	if !art.UpdatedAt.IsZero() {
		fmt.Fprintf(out, "Updated:   %s\n", humanize.Time(art.UpdatedAt))
	}

	txt, err := a.store.GetExtractedText(ctx, art.ID)
	if err != nil {
		return err
	}
	if txt == nil {
		return nil
	}

	limit, _ := cmd.Flags().GetInt("chars")
	preview, truncated := truncateRunes(txt.Text, limit)
	fmt.Fprintf(out, "Extractor: %s (%s chars, %s)\n\n", txt.Extractor, humanize.Comma(int64(txt.Chars)), humanize.Time(txt.ExtractedAt))
	fmt.Fprintln(out, preview)
	if truncated {
		fmt.Fprintf(out, "\n[... %s more characters]\n", humanize.Comma(int64(txt.Chars-limit)))
	}
	return nil
}

// lookupArtifact resolves a numeric identity or a path
func lookupArtifact(ctx context.Context, db *store.Store, ref string) (*store.Artifact, error) {
	var (
		art *store.Artifact
		err error
	)
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		art, err = db.GetArtifact(ctx, id)
	} else {
		abs, aerr := filepath.Abs(ref)
		if aerr != nil {
			return nil, aerr
		}
		art, err = db.GetArtifactByPath(ctx, abs)
	}
	if err != nil {
		return nil, err
	}
	if art == nil {
		return nil, fmt.Errorf("artifact %s: %w", ref, util.ErrNotFound)
	}
	return art, nil
}

func truncateRunes(s string, n int) (string, bool) {
	if n <= 0 {
		return s, false
	}
	r := []rune(s)
	if len(r) <= n {
		return s, false
	}
	return string(r[:n]), true
}
