package extract

import (
	"sort"

	"github.com/franz/project-copilot/internal/config"
	"github.com/franz/project-copilot/internal/util"
)

// Extension sets per format
var (
	PlainExtensions = []string{".txt", ".md", ".json", ".yaml", ".yml", ".py", ".log", ".csv"}
	PDFExtensions   = []string{".pdf"}
	DOCXExtensions  = []string{".docx"}
	ImageExtensions = []string{".png", ".jpg", ".jpeg"}
	AudioExtensions = []string{".mp3", ".flac", ".m4a", ".ogg"}
)

// Registry maps a lowercase extension to its extractor. It is built once per
// configuration and read-only afterwards.
type Registry struct {
	byExt    map[string]Extractor
	binaries Binaries
}

// NewRegistry registers the extractors enabled by cfg. Plain text is always
// registered; PDF and DOCX unless disabled; images only when the images flag
// is on (OCR gating happens inside the extractor); audio only when enabled.
func NewRegistry(cfg *config.Config, bins Binaries) *Registry {
	if bins == nil {
		bins = Binaries{}
	}
	flags := cfg.Features.Extraction

	r := &Registry{byExt: make(map[string]Extractor), binaries: bins}

	r.register(PlainExtractor{}, PlainExtensions)
	if flags.PDFEnabled() {
		r.register(NewPDFExtractor(flags.OCREnabled(), bins), PDFExtensions)
	}
	if flags.DocxEnabled() {
		r.register(DOCXExtractor{}, DOCXExtensions)
	}
	if flags.ImagesEnabled() {
		r.register(NewImageExtractor(true, flags.OCREnabled(), bins), ImageExtensions)
	}
	if flags.AudioEnabled() {
		r.register(AudioExtractor{}, AudioExtensions)
	}

	util.DebugLog("Extraction registry: %d extensions", len(r.byExt))
	return r
}

// NewRegistryWith builds a registry from an explicit extension map
func NewRegistryWith(byExt map[string]Extractor) *Registry {
	r := &Registry{byExt: make(map[string]Extractor, len(byExt)), binaries: Binaries{}}
	for ext, e := range byExt {
		r.byExt[util.NormalizeExt(ext)] = e
	}
	return r
}

func (r *Registry) register(e Extractor, exts []string) {
	for _, ext := range exts {
		r.byExt[util.NormalizeExt(ext)] = e
	}
}

// Get returns the extractor for ext (case-insensitive, leading dot optional)
func (r *Registry) Get(ext string) (Extractor, bool) {
	e, ok := r.byExt[util.NormalizeExt(ext)]
	return e, ok
}

// Extensions lists the registered extensions, sorted
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Kinds returns the set of registered formats
func (r *Registry) Kinds() map[Kind]bool {
	kinds := make(map[Kind]bool)
	for _, e := range r.byExt {
		kinds[e.Kind()] = true
	}
	return kinds
}

// Binaries returns the probe result the registry was built with
func (r *Registry) Binaries() Binaries {
	return r.binaries
}
