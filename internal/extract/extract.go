// Package extract turns files into plain text.
//
// Each supported format is one Kind with one Extractor. Extractors do not
// decide lifecycle status; they report one of three outcomes in a Result
// (text, an error message, or nothing) and the indexer maps that to a status.
// A non-nil error from Extract means the extractor itself could not run
// (I/O failure, missing file), not that the format was rejected.
package extract

import (
	"context"
	"fmt"
	"strings"
)

// Kind is the closed set of supported formats
type Kind string

const (
	KindPlain Kind = "plain"
	KindPDF   Kind = "pdf"
	KindDOCX  Kind = "docx"
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Metadata keys set by extractors
const (
	MetaReason     = "reason"
	MetaPages      = "pages"
	MetaImagePages = "image_pages"
	MetaEncoding   = "encoding"
	MetaOCR        = "ocr"
)

// Reasons recorded under MetaReason when no content is produced
const (
	ReasonDisabled      = "disabled"
	ReasonOCRDisabled   = "ocr_disabled"
	ReasonNoBinary      = "binary_missing"
	ReasonNoText        = "no_text"
	ReasonNoTags        = "no_tags"
	ReasonScanned       = "scanned"
	ReasonEmptyDocument = "empty_document"
)

// Placeholders stored in place of text that needs OCR
const (
	ImagePlaceholder      = "[image]"
	ScannedPDFPlaceholder = "[OCR Content Placeholder: Scanned PDF detected]"
)

// Result is what an extractor produced for one file
type Result struct {
	Content  string
	Found    bool // Content holds more than whitespace
	Error    string
	Metadata map[string]string
}

// Text returns a content result, or an absent one with ReasonNoText when
// content is empty or whitespace only
func Text(content string) Result {
	if strings.TrimSpace(content) == "" {
		return Absent(ReasonNoText)
	}
	return Result{Content: content, Found: true, Metadata: map[string]string{}}
}

// Absent returns a result with no content and no error; reason goes to metadata
func Absent(reason string) Result {
	return Result{Metadata: map[string]string{MetaReason: reason}}
}

// Failed returns a result carrying a format-level failure message
func Failed(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...), Metadata: map[string]string{}}
}

// With adds a metadata entry
func (r Result) With(key, value string) Result {
	if r.Metadata == nil {
		r.Metadata = map[string]string{}
	}
	r.Metadata[key] = value
	return r
}

// Reason returns the metadata reason for an absent result
func (r Result) Reason() string {
	return r.Metadata[MetaReason]
}

// Extractor converts one file into a Result
type Extractor interface {
	Name() string
	Kind() Kind
	Extract(ctx context.Context, path string) (Result, error)
}
