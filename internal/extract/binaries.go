package extract

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/franz/project-copilot/internal/config"
	"github.com/franz/project-copilot/internal/util"
)

// External OCR tools
const (
	Tesseract = "tesseract"
	Poppler   = "pdftoppm"
)

// Binaries maps a tool name to its resolved location. A tool that was not
// found has no entry.
type Binaries map[string]string

// Has reports whether the tool was found
func (b Binaries) Has(name string) bool {
	return b[name] != ""
}

// Present returns the {name: found} view for every known tool
func (b Binaries) Present() map[string]bool {
	return map[string]bool{
		Tesseract: b.Has(Tesseract),
		Poppler:   b.Has(Poppler),
	}
}

// Missing lists the named tools that were not found
func (b Binaries) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if !b.Has(n) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// ProbeBinaries looks up the OCR tools. Lookup order per tool: configured
// path, ./tools/<name>/<name>, ./tools/<name>, then $PATH.
func ProbeBinaries(cfg *config.Config) Binaries {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	bins := Binaries{}
	if p := findBinary(Tesseract, cfg.Tools.TesseractPath, cwd); p != "" {
		bins[Tesseract] = p
		util.DebugLog("Tesseract found: %s", p)
	}
	if p := findBinary(Poppler, cfg.Tools.PopplerPath, cwd); p != "" {
		bins[Poppler] = p
		util.DebugLog("pdftoppm found: %s", p)
	}

	if !bins.Has(Tesseract) && cfg.Features.Extraction.OCREnabled() {
		util.WarnLog("OCR enabled but tesseract not found (looked in tools/ and PATH)")
	}
	return bins
}

func findBinary(name, configured, root string) string {
	if configured != "" {
		if isFile(configured) {
			return configured
		}
		util.WarnLog("Configured %s path %s does not exist", name, configured)
	}

	exe := name
	if runtime.GOOS == "windows" {
		exe += ".exe"
	}

	for _, candidate := range []string{
		filepath.Join(root, "tools", name, exe),
		filepath.Join(root, "tools", exe),
	} {
		if isFile(candidate) {
			return candidate
		}
	}

	if p, err := exec.LookPath(exe); err == nil {
		return p
	}
	return ""
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
