package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const docxBody = "word/document.xml"

// DOCXExtractor joins the paragraph text of word/document.xml with newlines.
// Any failure to read the package is a failed result, never partial content.
type DOCXExtractor struct{}

func (DOCXExtractor) Name() string { return "docx" }
func (DOCXExtractor) Kind() Kind   { return KindDOCX }

func (DOCXExtractor) Extract(ctx context.Context, path string) (Result, error) {
	if _, err := os.Stat(path); err != nil {
		return Result{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return Failed("DOCX extraction failed: %v", err), nil
	}
	defer zr.Close()

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return Failed("DOCX extraction failed: %s not found", docxBody), nil
	}

	rc, err := body.Open()
	if err != nil {
		return Failed("DOCX extraction failed: %v", err), nil
	}
	defer rc.Close()

	paragraphs, err := docxParagraphs(rc)
	if err != nil {
		return Failed("DOCX extraction failed: %v", err), nil
	}
	return Text(strings.Join(paragraphs, "\n")), nil
}

// docxParagraphs walks WordprocessingML and returns the text of each w:p
func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		cur        strings.Builder
		inPara     bool
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				cur.Reset()
			case "t":
				inText = true
			case "tab":
				if inPara {
					cur.WriteByte('\t')
				}
			case "br", "cr":
				if inPara {
					cur.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				paragraphs = append(paragraphs, cur.String())
				inPara = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	return paragraphs, nil
}
