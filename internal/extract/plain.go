package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/franz/project-copilot/internal/util"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PlainExtractor reads text files. Undecodable bytes become U+FFFD; a
// UTF-16 or UTF-8 byte order mark selects the decoding and is dropped.
type PlainExtractor struct{}

func (PlainExtractor) Name() string { return "plain" }
func (PlainExtractor) Kind() Kind   { return KindPlain }

func (PlainExtractor) Extract(ctx context.Context, path string) (Result, error) {
	f, err := util.RetryableOpen(path, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 3)
	n, _ := io.ReadFull(f, head)
	head = head[:n]
	encoding := "utf-8"
	switch {
	case bytes.HasPrefix(head, []byte{0xFF, 0xFE}):
		encoding = "utf-16le"
	case bytes.HasPrefix(head, []byte{0xFE, 0xFF}):
		encoding = "utf-16be"
	}

	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	r := transform.NewReader(io.MultiReader(bytes.NewReader(head), f), dec)
	raw, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return Text(norm.NFC.String(string(raw))).With(MetaEncoding, encoding), nil
}
