package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/franz/project-copilot/internal/util"
	"github.com/spf13/viper"
)

// LoadOptions selects where configuration comes from.
// File wins over Dir; empty fields fall back to the environment variables
// and then to ./config.
type LoadOptions struct {
	File string
	Dir  string
}

// Load reads, validates, and resolves the configuration.
//
// Single-file mode reads exactly one file. Directory mode reads general.yaml
// and then merges <env>.yaml on top of it; missing files are skipped, but at
// least one must exist.
func Load(opts LoadOptions) (*Config, error) {
	file := opts.File
	if file == "" && opts.Dir == "" {
		file = os.Getenv(FileEnvVar)
	}

	if file != "" {
		return LoadFile(file)
	}

	dir := opts.Dir
	if dir == "" {
		dir = os.Getenv(DirEnvVar)
	}
	if dir == "" {
		dir = DefaultDir
	}
	return LoadDir(dir, Env())
}

// LoadFile loads a single configuration file
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return finish(v.AllSettings(), filepath.Dir(path), []string{path})
}

// LoadDir loads general.yaml and <env>.yaml from dir, the latter taking precedence
func LoadDir(dir, env string) (*Config, error) {
	candidates := []string{
		filepath.Join(dir, "general.yaml"),
		filepath.Join(dir, strings.ToLower(env)+".yaml"),
	}

	v := viper.New()
	v.SetConfigType("yaml")

	var loaded []string
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				util.DebugLog("Config file not present: %s", path)
				continue
			}
			return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
		}

		v.SetConfigFile(path)
		var err error
		if len(loaded) == 0 {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}

	if len(loaded) == 0 {
		return nil, fmt.Errorf("%w: no config files found in %s (tried: %s)",
			util.ErrNotFound, dir, strings.Join(candidates, ", "))
	}

	return finish(v.AllSettings(), dir, loaded)
}

func finish(raw map[string]any, dir string, sources []string) (*Config, error) {
	cfg, err := FromMap(raw)
	if err != nil {
		return nil, err
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}
	if err := cfg.ResolvePaths(absDir); err != nil {
		return nil, err
	}

	cfg.Dir = absDir
	cfg.Sources = sources
	return cfg, nil
}
