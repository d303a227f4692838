package index

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/denormal/go-gitignore"
	"github.com/franz/project-copilot/internal/util"
)

// IgnoreFile lists workspace files to leave out of scans and batches, in
// gitignore syntax. It is always excluded itself.
const IgnoreFile = ".copilotignore"

// ignoreRules combines the workspace ignore file with configured patterns
type ignoreRules struct {
	file     gitignore.GitIgnore
	patterns []string
}

func loadIgnoreRules(dir string, patterns []string) *ignoreRules {
	r := &ignoreRules{patterns: patterns}

	f, err := os.Open(filepath.Join(dir, IgnoreFile))
	if err != nil {
		if !os.IsNotExist(err) {
			util.WarnLog("Cannot read %s in %s: %v", IgnoreFile, dir, err)
		}
		return r
	}
	defer f.Close()

	r.file = gitignore.New(f, dir, func(e gitignore.Error) bool {
		util.WarnLog("%s: %v", IgnoreFile, e)
		return true
	})
	return r
}

// excluded reports whether the file name (relative to the workspace) is ignored
func (r *ignoreRules) excluded(name string) bool {
	if name == IgnoreFile {
		return true
	}
	if r.file != nil {
		if m := r.file.Relative(name, false); m != nil && m.Ignore() {
			return true
		}
	}
	for _, p := range r.patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
