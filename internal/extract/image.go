package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// commandRunner runs an external tool and returns its stdout
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s failed: %s", name, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s execution failed: %w", name, err)
	}
	return out, nil
}

// ImageExtractor runs tesseract over an image. It produces content only when
// both the images and ocr flags are on and tesseract was found; otherwise
// the result is absent with the reason in metadata.
type ImageExtractor struct {
	images bool
	ocr    bool
	bins   Binaries
	run    commandRunner
}

// NewImageExtractor creates an image extractor
func NewImageExtractor(images, ocr bool, bins Binaries) *ImageExtractor {
	return &ImageExtractor{images: images, ocr: ocr, bins: bins, run: runCommand}
}

func (e *ImageExtractor) Name() string { return "image" }
func (e *ImageExtractor) Kind() Kind   { return KindImage }

func (e *ImageExtractor) Extract(ctx context.Context, path string) (Result, error) {
	if _, err := os.Stat(path); err != nil {
		return Result{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	switch {
	case !e.images:
		return Absent(ReasonDisabled), nil
	case !e.ocr:
		return Absent(ReasonOCRDisabled), nil
	case !e.bins.Has(Tesseract):
		return Absent(ReasonNoBinary), nil
	}

	out, err := e.run(ctx, e.bins[Tesseract], path, "stdout")
	if err != nil {
		return Failed("image OCR failed: %v", err), nil
	}

	text := strings.TrimSpace(string(out))
	if text == "" {
		return Absent(ReasonNoText).With(MetaOCR, "tesseract"), nil
	}
	return Text(text).With(MetaOCR, "tesseract"), nil
}
