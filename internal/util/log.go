package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	logMu           sync.Mutex
	currentLogLevel = LevelInfo
	useColors       = ColorsWanted(os.Stderr)
	logOutput       io.Writer = os.Stderr
)

// SetLogLevel sets the minimum log level to display
func SetLogLevel(level LogLevel) {
	logMu.Lock()
	defer logMu.Unlock()
	currentLogLevel = level
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		SetLogLevel(LevelDebug)
	}
}

// SetQuiet enables quiet mode (errors only)
func SetQuiet(quiet bool) {
	if quiet {
		SetLogLevel(LevelError)
	}
}

// IsQuiet reports whether only errors are being logged
func IsQuiet() bool {
	logMu.Lock()
	defer logMu.Unlock()
	return currentLogLevel >= LevelError
}

// SetColors enables or disables colored output
func SetColors(enabled bool) {
	logMu.Lock()
	defer logMu.Unlock()
	useColors = enabled
}

// SetLogOutput redirects log output. Passing nil restores stderr.
func SetLogOutput(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	logOutput = w
}

func colorize(color string, text string) string {
	if !useColors {
		return text
	}
	reset := "\033[0m"
	return color + text + reset
}

func logf(level LogLevel, color, tag, format string, args ...interface{}) {
	logMu.Lock()
	defer logMu.Unlock()
	if currentLogLevel > level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(logOutput, "%s %s %s\n", colorize(color, timestamp()), tag, msg)
}

// DebugLog logs debug messages
func DebugLog(format string, args ...interface{}) {
	logf(LevelDebug, "\033[90m", "[DEBUG]", format, args...)
}

// InfoLog logs informational messages
func InfoLog(format string, args ...interface{}) {
	logf(LevelInfo, "\033[36m", "[INFO] ", format, args...)
}

// WarnLog logs warning messages
func WarnLog(format string, args ...interface{}) {
	logf(LevelWarn, "\033[33m", "[WARN] ", format, args...)
}

// ErrorLog logs error messages
func ErrorLog(format string, args ...interface{}) {
	logf(LevelError, "\033[31m", "[ERROR]", format, args...)
}

// SuccessLog logs success messages (always shown unless quiet)
func SuccessLog(format string, args ...interface{}) {
	logf(LevelInfo, "\033[32m", "[OK]   ", format, args...)
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}
