package extract

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pageReader is the part of a PDF library the extractor needs. Pages are 1-based.
type pageReader interface {
	NumPage() int
	PageText(n int) (string, error)
	Close() error
}

type ledongthucReader struct {
	f *os.File
	r *pdf.Reader
}

func openPDF(path string) (pageReader, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	return &ledongthucReader{f: f, r: r}, nil
}

func (l *ledongthucReader) NumPage() int { return l.r.NumPage() }

func (l *ledongthucReader) PageText(n int) (string, error) {
	p := l.r.Page(n)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

func (l *ledongthucReader) Close() error { return l.f.Close() }

// PDFExtractor extracts text page by page. Pages without text become
// ImagePlaceholder. A document with no real text on any page is treated as
// scanned: it needs OCR, which requires both tesseract and pdftoppm.
type PDFExtractor struct {
	ocr  bool
	bins Binaries
	open func(path string) (pageReader, error)
}

// NewPDFExtractor creates a PDF extractor
func NewPDFExtractor(ocr bool, bins Binaries) *PDFExtractor {
	return &PDFExtractor{ocr: ocr, bins: bins, open: openPDF}
}

func (e *PDFExtractor) Name() string { return "pdf" }
func (e *PDFExtractor) Kind() Kind   { return KindPDF }

func (e *PDFExtractor) Extract(ctx context.Context, path string) (res Result, err error) {
	if _, err := os.Stat(path); err != nil {
		return Result{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	// Malformed documents can panic inside the parser
	defer func() {
		if r := recover(); r != nil {
			res, err = Failed("PDF extraction failed: %v", r), nil
		}
	}()

	doc, err := e.open(path)
	if err != nil {
		return Failed("PDF extraction failed: %v", err), nil
	}
	defer doc.Close()

	var (
		parts      []string
		realPages  int
		imagePages int
	)
	total := doc.NumPage()
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		text, err := doc.PageText(i)
		if err != nil {
			return Failed("PDF extraction failed on page %d: %v", i, err), nil
		}
		if strings.TrimSpace(text) == "" {
			parts = append(parts, ImagePlaceholder)
			imagePages++
			continue
		}
		parts = append(parts, text)
		realPages++
	}

	if realPages > 0 {
		return Text(strings.Join(parts, "\n")).
			With(MetaPages, strconv.Itoa(total)).
			With(MetaImagePages, strconv.Itoa(imagePages)), nil
	}
	return e.scanned(total), nil
}

func (e *PDFExtractor) scanned(pages int) Result {
	if !e.ocr {
		reason := ReasonScanned
		if pages == 0 {
			reason = ReasonEmptyDocument
		}
		return Absent(reason).With(MetaPages, strconv.Itoa(pages))
	}
	if missing := e.bins.Missing(Tesseract, Poppler); len(missing) > 0 {
		return Failed("OCR required but binaries missing: %s", strings.Join(missing, ", "))
	}
	return Text(ScannedPDFPlaceholder).
		With(MetaOCR, "placeholder").
		With(MetaPages, strconv.Itoa(pages))
}
