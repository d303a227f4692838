// Package config loads and validates the project-copilot configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/franz/project-copilot/internal/util"
	"github.com/go-viper/mapstructure/v2"
)

const (
	// EnvVar selects the environment overlay (general.yaml + <env>.yaml)
	EnvVar = "PROJECT_COPILOT_ENV"
	// FileEnvVar points at a single configuration file
	FileEnvVar = "PROJECT_COPILOT_CONFIG_FILE"
	// DirEnvVar points at a configuration directory
	DirEnvVar = "PROJECT_COPILOT_CONFIG_DIR"

	DefaultEnv = "DEV"
	DefaultDir = "config"

	DefaultScanChunkSize = 500
	MinScanChunkSize     = 50
	MaxScanChunkSize     = 5000
)

// Config is the validated configuration consumed by the core
type Config struct {
	Features Features `mapstructure:"features" yaml:"features"`
	Paths    Paths    `mapstructure:"paths" yaml:"paths"`
	Tools    Tools    `mapstructure:"tools" yaml:"tools"`
	Indexing Indexing `mapstructure:"indexing" yaml:"indexing"`

	// Set by the loader, never read from the file
	Env     string   `mapstructure:"-" yaml:"env"`
	Dir     string   `mapstructure:"-" yaml:"-"`
	Sources []string `mapstructure:"-" yaml:"sources,omitempty"`
}

// Features toggles optional behavior. Nil means "not set in the file".
type Features struct {
	SearchEnabled *bool      `mapstructure:"search_enabled" yaml:"search_enabled"`
	FTSEnabled    *bool      `mapstructure:"fts_enabled" yaml:"fts_enabled"`
	Extraction    Extraction `mapstructure:"extraction" yaml:"extraction"`
}

// Extraction holds per-format extractor flags
type Extraction struct {
	Images *bool `mapstructure:"images" yaml:"images"`
	OCR    *bool `mapstructure:"ocr" yaml:"ocr"`
	Docx   *bool `mapstructure:"docx" yaml:"docx"`
	PDF    *bool `mapstructure:"pdf" yaml:"pdf"`
	Audio  *bool `mapstructure:"audio" yaml:"audio"`
}

// Paths are the required filesystem locations
type Paths struct {
	DBPath       string `mapstructure:"db_path" yaml:"db_path"`
	IngestDir    string `mapstructure:"ingest_dir" yaml:"ingest_dir"`
	ProcessedDir string `mapstructure:"processed_dir" yaml:"processed_dir"`
	LogsDir      string `mapstructure:"logs_dir" yaml:"logs_dir"`
}

// Tools overrides the location of external OCR binaries
type Tools struct {
	TesseractPath string `mapstructure:"tesseract_path" yaml:"tesseract_path,omitempty"`
	PopplerPath   string `mapstructure:"poppler_path" yaml:"poppler_path,omitempty"`
}

// Indexing tunes the orchestrator
type Indexing struct {
	ScanChunkSize int      `mapstructure:"scan_chunk_size" yaml:"scan_chunk_size"`
	HashContent   bool     `mapstructure:"hash_content" yaml:"hash_content"`
	Exclude       []string `mapstructure:"exclude" yaml:"exclude,omitempty"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// SearchEnabledOr returns features.search_enabled, or def when unset
func (f Features) SearchEnabledOr(def bool) bool { return boolOr(f.SearchEnabled, def) }

// FTS reports whether the full-text index is requested (default on)
func (f Features) FTS() bool { return boolOr(f.FTSEnabled, true) }

func (e Extraction) PDFEnabled() bool    { return boolOr(e.PDF, true) }
func (e Extraction) DocxEnabled() bool   { return boolOr(e.Docx, true) }
func (e Extraction) ImagesEnabled() bool { return boolOr(e.Images, false) }
func (e Extraction) OCREnabled() bool    { return boolOr(e.OCR, false) }
func (e Extraction) AudioEnabled() bool  { return boolOr(e.Audio, false) }

// ChunkSize returns the store page size for workspace scans, clamped to a sane range
func (i Indexing) ChunkSize() int {
	n := i.ScanChunkSize
	switch {
	case n <= 0:
		return DefaultScanChunkSize
	case n < MinScanChunkSize:
		return MinScanChunkSize
	case n > MaxScanChunkSize:
		return MaxScanChunkSize
	}
	return n
}

// Env returns the environment tag from PROJECT_COPILOT_ENV, upper-cased, default DEV
func Env() string {
	env := strings.ToUpper(strings.TrimSpace(os.Getenv(EnvVar)))
	if env == "" {
		return DefaultEnv
	}
	return env
}

var boolKeys = map[string][]string{
	"features":            {"search_enabled", "fts_enabled"},
	"features.extraction": {"images", "ocr", "docx", "pdf", "audio"},
}

var requiredPaths = []string{"db_path", "ingest_dir", "processed_dir", "logs_dir"}

// FromMap validates a raw nested configuration and decodes it.
// All problems are reported together; a config with any problem is rejected whole.
func FromMap(raw map[string]any) (*Config, error) {
	raw = normalizeLegacy(raw)

	var problems []error

	features, ok := section(raw, "features")
	if !ok {
		problems = append(problems, errors.New("missing section: 'features'"))
	}
	paths, ok := section(raw, "paths")
	if !ok {
		problems = append(problems, errors.New("missing section: 'paths'"))
	}

	if features != nil {
		checkBools(features, "features", &problems)
		if v, present := features["extraction"]; present && v != nil {
			if extraction, isMap := v.(map[string]any); isMap {
				checkBools(extraction, "features.extraction", &problems)
			} else {
				problems = append(problems, errors.New("'features.extraction' must be a mapping"))
			}
		}
	}

	if paths != nil {
		for _, key := range requiredPaths {
			v, present := paths[key]
			if !present {
				problems = append(problems, fmt.Errorf("missing path config: 'paths.%s'", key))
				continue
			}
			if s, isStr := v.(string); !isStr || strings.TrimSpace(s) == "" {
				problems = append(problems, fmt.Errorf("'paths.%s' must be a non-empty string", key))
			}
		}
	}

	if indexing, ok := section(raw, "indexing"); ok {
		checkExclude(indexing["exclude"], &problems)
	}

	var cfg Config
	if len(problems) == 0 {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &cfg,
			TagName:          "mapstructure",
			WeaklyTypedInput: false,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create decoder: %w", err)
		}
		if err := decoder.Decode(raw); err != nil {
			problems = append(problems, err)
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %w", util.ErrInvalidConfig, errors.Join(problems...))
	}

	cfg.Env = Env()
	return &cfg, nil
}

// section fetches a nested mapping. A present but non-mapping value is
// reported as missing.
func section(raw map[string]any, key string) (map[string]any, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func checkBools(m map[string]any, prefix string, problems *[]error) {
	for _, key := range boolKeys[prefix] {
		v, present := m[key]
		if !present || v == nil {
			continue
		}
		if _, ok := v.(bool); !ok {
			*problems = append(*problems, fmt.Errorf("field '%s.%s' must be boolean, got %T", prefix, key, v))
		}
	}
}

// checkExclude requires indexing.exclude to be a list of valid glob patterns
func checkExclude(v any, problems *[]error) {
	if v == nil {
		return
	}
	list, ok := v.([]any)
	if !ok {
		*problems = append(*problems, fmt.Errorf("'indexing.exclude' must be a list of patterns, got %T", v))
		return
	}
	for i, item := range list {
		pattern, ok := item.(string)
		if !ok || !doublestar.ValidatePattern(pattern) {
			*problems = append(*problems, fmt.Errorf("'indexing.exclude[%d]' is not a valid glob pattern: %v", i, item))
		}
	}
}

// normalizeLegacy maps older top-level layouts onto the current one:
// top-level search_enabled/fts_enabled move under features (features wins),
// and database.path fills paths.db_path when that is absent.
func normalizeLegacy(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	for _, key := range []string{"search_enabled", "fts_enabled"} {
		legacy, ok := out[key]
		if !ok {
			continue
		}
		delete(out, key)
		features, isMap := out["features"].(map[string]any)
		if out["features"] == nil {
			features = map[string]any{}
		} else if !isMap {
			continue
		}
		features = cloneMap(features)
		if _, set := features[key]; !set {
			features[key] = legacy
		}
		out["features"] = features
	}

	if db, ok := out["database"].(map[string]any); ok {
		if p, ok := db["path"]; ok {
			paths, isMap := out["paths"].(map[string]any)
			if out["paths"] == nil || isMap {
				paths = cloneMap(paths)
				if _, set := paths["db_path"]; !set {
					paths["db_path"] = p
				}
				out["paths"] = paths
			}
		}
	}

	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ResolvePaths makes relative paths absolute against base (usually the config directory).
// Only db_path is resolved against base; the directories resolve against the working directory.
func (c *Config) ResolvePaths(base string) error {
	if c.Paths.DBPath != "" && !filepath.IsAbs(c.Paths.DBPath) && base != "" {
		c.Paths.DBPath = filepath.Join(base, c.Paths.DBPath)
	}

	var err error
	for _, p := range []*string{&c.Paths.DBPath, &c.Paths.IngestDir, &c.Paths.ProcessedDir, &c.Paths.LogsDir} {
		if *p == "" {
			continue
		}
		if *p, err = filepath.Abs(*p); err != nil {
			return fmt.Errorf("failed to resolve path %q: %w", *p, err)
		}
	}
	return nil
}

// EnsureDirs creates the ingest, processed, and logs directories and the
// parent directory of the database file.
func (c *Config) EnsureDirs() error {
	dirs := []string{c.Paths.IngestDir, c.Paths.ProcessedDir, c.Paths.LogsDir}
	if c.Paths.DBPath != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.DBPath))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Effective returns a copy with every optional flag filled in with its default,
// suitable for display.
func (c *Config) Effective() *Config {
	out := *c
	t := func(v bool) *bool { return &v }
	search := c.Features.SearchEnabledOr(true)
	out.Features.SearchEnabled = t(search)
	out.Features.FTSEnabled = t(c.Features.FTS())
	out.Features.Extraction = Extraction{
		Images: t(c.Features.Extraction.ImagesEnabled()),
		OCR:    t(c.Features.Extraction.OCREnabled()),
		Docx:   t(c.Features.Extraction.DocxEnabled()),
		PDF:    t(c.Features.Extraction.PDFEnabled()),
		Audio:  t(c.Features.Extraction.AudioEnabled()),
	}
	out.Indexing.ScanChunkSize = c.Indexing.ChunkSize()
	out.Indexing.Exclude = append([]string(nil), c.Indexing.Exclude...)
	out.Sources = append([]string(nil), c.Sources...)
	return &out
}
