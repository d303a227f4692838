package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/project-copilot/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRaw(dir string) map[string]any {
	return map[string]any{
		"features": map[string]any{
			"search_enabled": true,
			"fts_enabled":    false,
			"extraction": map[string]any{
				"images": true, "ocr": false, "docx": true, "pdf": true,
			},
		},
		"paths": map[string]any{
			"db_path":       filepath.Join(dir, "db", "copilot.db"),
			"ingest_dir":    filepath.Join(dir, "ingest"),
			"processed_dir": filepath.Join(dir, "processed"),
			"logs_dir":      filepath.Join(dir, "logs"),
		},
	}
}

func TestFromMap_Valid(t *testing.T) {
	dir := t.TempDir()

	cfg, err := FromMap(validRaw(dir))
	require.NoError(t, err)

	assert.True(t, cfg.Features.SearchEnabledOr(false))
	assert.False(t, cfg.Features.FTS())
	assert.True(t, cfg.Features.Extraction.ImagesEnabled())
	assert.False(t, cfg.Features.Extraction.OCREnabled())
	assert.False(t, cfg.Features.Extraction.AudioEnabled())

	require.NoError(t, cfg.EnsureDirs())
	for _, sub := range []string{"ingest", "processed", "logs", "db"} {
		assert.DirExists(t, filepath.Join(dir, sub))
	}
}

func TestFromMap_Defaults(t *testing.T) {
	raw := validRaw(t.TempDir())
	raw["features"] = map[string]any{}

	cfg, err := FromMap(raw)
	require.NoError(t, err)

	assert.True(t, cfg.Features.FTS(), "fts defaults on")
	assert.True(t, cfg.Features.Extraction.PDFEnabled(), "pdf defaults on")
	assert.True(t, cfg.Features.Extraction.DocxEnabled(), "docx defaults on")
	assert.False(t, cfg.Features.Extraction.ImagesEnabled(), "images default off")
	assert.True(t, cfg.Features.SearchEnabledOr(true))
	assert.False(t, cfg.Features.SearchEnabledOr(false))
	assert.Equal(t, DefaultScanChunkSize, cfg.Indexing.ChunkSize())
}

func TestFromMap_MissingPaths(t *testing.T) {
	raw := map[string]any{
		"features": map[string]any{"search_enabled": true},
		"paths":    map[string]any{"db_path": "foo.db"},
	}

	_, err := FromMap(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "paths.ingest_dir")
	assert.Contains(t, err.Error(), "paths.processed_dir")
	assert.Contains(t, err.Error(), "paths.logs_dir")
}

func TestFromMap_BadTypes(t *testing.T) {
	raw := validRaw(t.TempDir())
	raw["features"] = map[string]any{
		"search_enabled": "yes",
		"extraction":     map[string]any{"ocr": 1},
	}

	_, err := FromMap(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "features.search_enabled' must be boolean")
	assert.Contains(t, err.Error(), "features.extraction.ocr' must be boolean")
}

func TestFromMap_MissingSections(t *testing.T) {
	_, err := FromMap(map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing section: 'features'")
	assert.Contains(t, err.Error(), "missing section: 'paths'")
}

func TestFromMap_StrictDecode(t *testing.T) {
	raw := validRaw(t.TempDir())
	raw["indexing"] = map[string]any{"scan_chunk_size": "many"}

	_, err := FromMap(raw)
	assert.ErrorIs(t, err, util.ErrInvalidConfig)
}

func TestFromMap_LegacyTopLevelFlags(t *testing.T) {
	raw := validRaw(t.TempDir())
	raw["search_enabled"] = false
	raw["fts_enabled"] = true
	raw["features"] = map[string]any{"search_enabled": true}

	cfg, err := FromMap(raw)
	require.NoError(t, err)
	assert.True(t, cfg.Features.SearchEnabledOr(false), "features section wins over legacy key")
	require.NotNil(t, cfg.Features.FTSEnabled)
	assert.True(t, *cfg.Features.FTSEnabled, "legacy key fills an unset feature")
}

func TestFromMap_LegacyDatabasePath(t *testing.T) {
	raw := validRaw(t.TempDir())
	paths := raw["paths"].(map[string]any)
	delete(paths, "db_path")
	raw["database"] = map[string]any{"path": "legacy.db"}

	cfg, err := FromMap(raw)
	require.NoError(t, err)
	assert.Equal(t, "legacy.db", cfg.Paths.DBPath)
}

func TestChunkSizeClamp(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultScanChunkSize},
		{-3, DefaultScanChunkSize},
		{10, MinScanChunkSize},
		{200, 200},
		{1_000_000, MaxScanChunkSize},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Indexing{ScanChunkSize: tt.in}.ChunkSize(), "in=%d", tt.in)
	}
}

func TestEnv(t *testing.T) {
	t.Setenv(EnvVar, "")
	assert.Equal(t, "DEV", Env())

	t.Setenv(EnvVar, "prod")
	assert.Equal(t, "PROD", Env())
}

const generalYAML = `
features:
  search_enabled: true
  extraction:
    pdf: true
paths:
  db_path: data/copilot.db
  ingest_dir: /tmp/ingest
  processed_dir: /tmp/processed
  logs_dir: /tmp/logs
`

const prodYAML = `
features:
  fts_enabled: false
indexing:
  scan_chunk_size: 100
`

func TestLoadDir_MergesEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "general.yaml"), []byte(generalYAML), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prod.yaml"), []byte(prodYAML), 0644))

	cfg, err := LoadDir(dir, "PROD")
	require.NoError(t, err)

	assert.Len(t, cfg.Sources, 2)
	assert.False(t, cfg.Features.FTS())
	assert.True(t, cfg.Features.SearchEnabledOr(false), "general values survive the overlay")
	assert.Equal(t, 100, cfg.Indexing.ChunkSize())
	assert.Equal(t, filepath.Join(cfg.Dir, "data", "copilot.db"), cfg.Paths.DBPath,
		"relative db_path resolves against the config directory")
}

func TestLoadDir_NoFiles(t *testing.T) {
	_, err := LoadDir(t.TempDir(), "DEV")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestLoad_FileEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "single.yaml")
	require.NoError(t, os.WriteFile(path, []byte(generalYAML), 0644))

	t.Setenv(FileEnvVar, path)
	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{path}, cfg.Sources)
}

func TestEffective(t *testing.T) {
	cfg, err := FromMap(validRaw(t.TempDir()))
	require.NoError(t, err)

	eff := cfg.Effective()
	require.NotNil(t, eff.Features.Extraction.Audio)
	assert.False(t, *eff.Features.Extraction.Audio)
	require.NotNil(t, eff.Features.Extraction.Docx)
	assert.True(t, *eff.Features.Extraction.Docx)
	assert.Nil(t, cfg.Features.Extraction.Audio, "original is untouched")
}

func TestLoadDir_ShippedConfig(t *testing.T) {
	cfg, err := LoadDir(filepath.Join("..", "..", "config"), "DEV")
	require.NoError(t, err)

	assert.Len(t, cfg.Sources, 2)
	assert.True(t, cfg.Features.SearchEnabledOr(false))
	assert.True(t, cfg.Features.FTS())
	assert.True(t, cfg.Indexing.HashContent)
	assert.Equal(t, "copilot.db", filepath.Base(cfg.Paths.DBPath))
	assert.True(t, filepath.IsAbs(cfg.Paths.IngestDir))
	assert.Contains(t, cfg.Indexing.Exclude, "*.tmp")
}

func TestFromMap_Exclude(t *testing.T) {
	raw := validRaw(t.TempDir())
	raw["indexing"] = map[string]any{"exclude": []any{"*.tmp", "draft-*"}}

	cfg, err := FromMap(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"*.tmp", "draft-*"}, cfg.Indexing.Exclude)

	raw["indexing"] = map[string]any{"exclude": []any{"[unclosed", 7}}
	_, err = FromMap(raw)
	require.ErrorIs(t, err, util.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "exclude[0]")
	assert.Contains(t, err.Error(), "exclude[1]")

	raw["indexing"] = map[string]any{"exclude": "*.tmp"}
	_, err = FromMap(raw)
	require.ErrorIs(t, err, util.ErrInvalidConfig)
}
