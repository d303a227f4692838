package util

import (
	"crypto/sha256"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileFacts is the filesystem metadata the indexer tracks for a file
type FileFacts struct {
	Path       string // absolute, cleaned
	Filename   string
	Ext        string // lower-cased, with leading dot
	SizeBytes  int64
	ModifiedAt float64 // unix seconds with sub-second precision
}

// StatFile collects FileFacts for a regular file.
// Missing files return an error wrapping ErrFileVanished.
func StatFile(path string) (*FileFacts, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := RetryableStat(abs, nil)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileVanished, abs)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", ErrUnsupported, abs)
	}

	return &FileFacts{
		Path:       abs,
		Filename:   info.Name(),
		Ext:        NormalizeExt(filepath.Ext(abs)),
		SizeBytes:  info.Size(),
		ModifiedAt: UnixSeconds(info.ModTime()),
	}, nil
}

// NormalizeExt lower-cases an extension and ensures the leading dot
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// UnixSeconds converts a time to fractional unix seconds
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// TimesDiffer reports whether two unix-second timestamps differ by more than tolerance
func TimesDiffer(a, b float64, tolerance time.Duration) bool {
	return math.Abs(a-b) > tolerance.Seconds()
}

// GenerateContentHash creates a SHA-256 hash of file content
func GenerateContentHash(path string) (string, error) {
	f, err := RetryableOpen(path, nil)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
