package util

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether fd refers to a terminal
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// ColorsWanted reports whether ANSI colors should be written to f: it must be
// a terminal and NO_COLOR must be unset.
func ColorsWanted(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return IsTerminal(f.Fd())
}
