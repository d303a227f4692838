package extract

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/franz/project-copilot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry(&config.Config{}, nil)

	for _, ext := range []string{".txt", ".MD", "json", ".csv", ".pdf", ".docx"} {
		_, ok := r.Get(ext)
		assert.True(t, ok, "expected extractor for %s", ext)
	}
	for _, ext := range []string{".png", ".jpg", ".mp3", ".exe", ""} {
		_, ok := r.Get(ext)
		assert.False(t, ok, "unexpected extractor for %q", ext)
	}

	e, _ := r.Get(".pdf")
	assert.Equal(t, KindPDF, e.Kind())
	assert.Equal(t, map[Kind]bool{KindPlain: true, KindPDF: true, KindDOCX: true}, r.Kinds())
}

func TestRegistryFlags(t *testing.T) {
	cfg := &config.Config{}
	cfg.Features.Extraction = config.Extraction{
		PDF:    boolPtr(false),
		Docx:   boolPtr(false),
		Images: boolPtr(true),
		Audio:  boolPtr(true),
	}
	r := NewRegistry(cfg, Binaries{})

	_, ok := r.Get(".pdf")
	assert.False(t, ok)
	_, ok = r.Get(".docx")
	assert.False(t, ok)

	img, ok := r.Get(".JPEG")
	require.True(t, ok)
	assert.Equal(t, KindImage, img.Kind())

	audio, ok := r.Get(".flac")
	require.True(t, ok)
	assert.Equal(t, KindAudio, audio.Kind())

	assert.Contains(t, r.Extensions(), ".png")
	assert.NotContains(t, r.Extensions(), ".pdf")
}

func TestPlainExtractor(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	tests := []struct {
		name     string
		data     []byte
		want     string
		encoding string
	}{
		{"utf8", []byte("Hello World Content\n"), "Hello World Content\n", "utf-8"},
		{"invalid bytes replaced", []byte{'a', 0xff, 'b'}, "a\uFFFDb", "utf-8"},
		{"utf8 bom dropped", []byte("\xef\xbb\xbfbom"), "bom", "utf-8"},
		{"utf16le bom", []byte{0xff, 0xfe, 'h', 0, 'i', 0}, "hi", "utf-16le"},
		{"nfc", []byte("cafe\u0301"), "caf\u00e9", "utf-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeFile(t, dir, tt.name+".txt", tt.data)
			res, err := PlainExtractor{}.Extract(ctx, p)
			require.NoError(t, err)
			assert.True(t, res.Found)
			assert.Empty(t, res.Error)
			assert.Equal(t, tt.want, res.Content)
			assert.Equal(t, tt.encoding, res.Metadata[MetaEncoding])
		})
	}

	for name, data := range map[string][]byte{"empty": {}, "blank": []byte(" \n\t\r\n")} {
		t.Run(name, func(t *testing.T) {
			res, err := PlainExtractor{}.Extract(ctx, writeFile(t, dir, name+".txt", data))
			require.NoError(t, err)
			assert.False(t, res.Found)
			assert.Empty(t, res.Error)
			assert.Equal(t, ReasonNoText, res.Reason())
			assert.Equal(t, "utf-8", res.Metadata[MetaEncoding])
		})
	}

	_, err := PlainExtractor{}.Extract(ctx, filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

type fakePDF struct {
	pages   []string
	pageErr error
	panics  bool
}

func (f *fakePDF) NumPage() int { return len(f.pages) }

func (f *fakePDF) PageText(n int) (string, error) {
	if f.panics {
		panic("malformed xref")
	}
	if f.pageErr != nil {
		return "", f.pageErr
	}
	return f.pages[n-1], nil
}

func (f *fakePDF) Close() error { return nil }

func pdfWith(doc *fakePDF, openErr error, ocr bool, bins Binaries) *PDFExtractor {
	e := NewPDFExtractor(ocr, bins)
	e.open = func(string) (pageReader, error) {
		if openErr != nil {
			return nil, openErr
		}
		return doc, nil
	}
	return e
}

func TestPDFExtractor(t *testing.T) {
	path := writeFile(t, t.TempDir(), "doc.pdf", []byte("%PDF-1.4"))
	ctx := context.Background()
	both := Binaries{Tesseract: "/bin/tesseract", Poppler: "/bin/pdftoppm"}

	t.Run("text with image page", func(t *testing.T) {
		res, err := pdfWith(&fakePDF{pages: []string{"first page", "  ", "third"}}, nil, false, nil).Extract(ctx, path)
		require.NoError(t, err)
		require.True(t, res.Found)
		assert.Equal(t, "first page\n"+ImagePlaceholder+"\nthird", res.Content)
		assert.Equal(t, "3", res.Metadata[MetaPages])
		assert.Equal(t, "1", res.Metadata[MetaImagePages])
	})

	t.Run("scanned with OCR disabled", func(t *testing.T) {
		res, err := pdfWith(&fakePDF{pages: []string{""}}, nil, false, both).Extract(ctx, path)
		require.NoError(t, err)
		assert.False(t, res.Found)
		assert.Empty(t, res.Error)
		assert.Equal(t, ReasonScanned, res.Reason())
	})

	t.Run("scanned with OCR and binaries", func(t *testing.T) {
		res, err := pdfWith(&fakePDF{pages: []string{""}}, nil, true, both).Extract(ctx, path)
		require.NoError(t, err)
		assert.True(t, res.Found)
		assert.Equal(t, ScannedPDFPlaceholder, res.Content)
	})

	t.Run("scanned with OCR and a missing binary", func(t *testing.T) {
		res, err := pdfWith(&fakePDF{pages: []string{""}}, nil, true, Binaries{Tesseract: "/bin/tesseract"}).Extract(ctx, path)
		require.NoError(t, err)
		assert.False(t, res.Found)
		assert.Contains(t, res.Error, "binaries missing")
		assert.Contains(t, res.Error, Poppler)
	})

	t.Run("empty document", func(t *testing.T) {
		res, err := pdfWith(&fakePDF{}, nil, false, nil).Extract(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, ReasonEmptyDocument, res.Reason())
	})

	t.Run("open failure", func(t *testing.T) {
		res, err := pdfWith(nil, errors.New("not a PDF"), false, nil).Extract(ctx, path)
		require.NoError(t, err)
		assert.Contains(t, res.Error, "not a PDF")
	})

	t.Run("page failure", func(t *testing.T) {
		res, err := pdfWith(&fakePDF{pages: []string{"x"}, pageErr: errors.New("bad font")}, nil, false, nil).Extract(ctx, path)
		require.NoError(t, err)
		assert.Contains(t, res.Error, "page 1")
	})

	t.Run("parser panic", func(t *testing.T) {
		res, err := pdfWith(&fakePDF{pages: []string{"x"}, panics: true}, nil, false, nil).Extract(ctx, path)
		require.NoError(t, err)
		assert.Contains(t, res.Error, "malformed xref")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := pdfWith(&fakePDF{}, nil, false, nil).Extract(ctx, path+".gone")
		assert.Error(t, err)
	})
}

func writeDocx(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for n, body := range files {
		w, err := zw.Create(n)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func TestDOCXExtractor(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Quarterly</w:t></w:r><w:r><w:t xml:space="preserve"> report</w:t></w:r></w:p>
    <w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t></w:r></w:p>
    <w:p/>
    <w:p><w:r><w:t>end</w:t></w:r></w:p>
  </w:body>
</w:document>`

	p := writeDocx(t, dir, "ok.docx", map[string]string{"word/document.xml": doc})
	res, err := DOCXExtractor{}.Extract(ctx, p)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, "Quarterly report\na\tb\n\nend", res.Content)

	empty := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p/><w:p><w:r><w:t xml:space="preserve">  </w:t></w:r></w:p></w:body></w:document>`
	p = writeDocx(t, dir, "empty.docx", map[string]string{"word/document.xml": empty})
	res, err = DOCXExtractor{}.Extract(ctx, p)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Empty(t, res.Error)
	assert.Equal(t, ReasonNoText, res.Reason())

	noBody := writeDocx(t, dir, "nobody.docx", map[string]string{"other.xml": "<x/>"})
	res, err = DOCXExtractor{}.Extract(ctx, noBody)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Contains(t, res.Error, "word/document.xml")

	notZip := writeFile(t, dir, "fake.docx", []byte("plain text"))
	res, err = DOCXExtractor{}.Extract(ctx, notZip)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.True(t, strings.HasPrefix(res.Error, "DOCX extraction failed"))

	broken := writeDocx(t, dir, "broken.docx", map[string]string{"word/document.xml": "<w:p><w:t>unterminated"})
	res, err = DOCXExtractor{}.Extract(ctx, broken)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.NotEmpty(t, res.Error)
}

func TestImageExtractor(t *testing.T) {
	path := writeFile(t, t.TempDir(), "scan.png", []byte("\x89PNG"))
	ctx := context.Background()
	withTess := Binaries{Tesseract: "/opt/tesseract"}

	tests := []struct {
		name   string
		images bool
		ocr    bool
		bins   Binaries
		reason string
	}{
		{"images disabled", false, true, withTess, ReasonDisabled},
		{"ocr disabled", true, false, withTess, ReasonOCRDisabled},
		{"no binary", true, true, Binaries{}, ReasonNoBinary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewImageExtractor(tt.images, tt.ocr, tt.bins)
			e.run = func(context.Context, string, ...string) ([]byte, error) {
				t.Fatal("tesseract should not run")
				return nil, nil
			}
			res, err := e.Extract(ctx, path)
			require.NoError(t, err)
			assert.False(t, res.Found)
			assert.Empty(t, res.Error)
			assert.Equal(t, tt.reason, res.Reason())
		})
	}

	e := NewImageExtractor(true, true, withTess)
	var gotName string
	var gotArgs []string
	e.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte("  recognized words \n"), nil
	}
	res, err := e.Extract(ctx, path)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "recognized words", res.Content)
	assert.Equal(t, "/opt/tesseract", gotName)
	assert.Equal(t, []string{path, "stdout"}, gotArgs)

	e.run = func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}
	res, err = e.Extract(ctx, path)
	require.NoError(t, err)
	assert.Contains(t, res.Error, "exit status 1")
}

func TestAudioExtractorWithoutTags(t *testing.T) {
	path := writeFile(t, t.TempDir(), "noise.mp3", []byte(strings.Repeat("not audio ", 30)))
	res, err := AudioExtractor{}.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, ReasonNoTags, res.Reason())
}

func TestFindBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable suffix differs on windows")
	}
	root := t.TempDir()

	configured := writeFile(t, root, "custom/tess", []byte("#!/bin/sh"))
	assert.Equal(t, configured, findBinary("tess", configured, root))

	nested := writeFile(t, root, "tools/tess/tess", []byte("#!/bin/sh"))
	assert.Equal(t, nested, findBinary("tess", filepath.Join(root, "nope"), root))

	direct := writeFile(t, root, "tools/ppm", []byte("#!/bin/sh"))
	assert.Equal(t, direct, findBinary("ppm", "", root))

	assert.Equal(t, "", findBinary("copilot-no-such-tool", "", root))
}

func TestBinariesMissing(t *testing.T) {
	b := Binaries{Poppler: "/usr/bin/pdftoppm"}
	assert.Equal(t, []string{Tesseract}, b.Missing(Tesseract, Poppler))
	assert.Equal(t, map[string]bool{Tesseract: false, Poppler: true}, b.Present())
	assert.Empty(t, Binaries{Tesseract: "a", Poppler: "b"}.Missing(Tesseract, Poppler))
}
