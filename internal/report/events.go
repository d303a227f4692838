package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventMigrate EventType = "migrate"
	EventScan    EventType = "scan"
	EventIndex   EventType = "index"
	EventRun     EventType = "run"
	EventError   EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// ParseLevel maps a level name to an EventLevel, defaulting to info
func ParseLevel(s string) EventLevel {
	l := EventLevel(s)
	if _, ok := levelPriority[l]; ok {
		return l
	}
	return LevelInfo
}

// Event is one line of the activity log
type Event struct {
	Timestamp  time.Time         `json:"ts"`
	Level      EventLevel        `json:"level"`
	Event      EventType         `json:"event"`
	ArtifactID int64             `json:"artifact_id,omitempty"`
	Path       string            `json:"path,omitempty"`
	State      string            `json:"state,omitempty"`
	Extractor  string            `json:"extractor,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Duration   int64             `json:"duration_ms,omitempty"`
	Error      string            `json:"error,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file. A nil logger discards everything.
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(outputDir, fmt.Sprintf("events-%s.jsonl", timestamp))

	// Runs started within the same second share one file
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

// LogMigrate logs one structural change made while opening the store
func (l *EventLogger) LogMigrate(action, detail string) error {
	return l.Log(&Event{
		Level:  LevelInfo,
		Event:  EventMigrate,
		Reason: detail,
		Extra:  map[string]string{"action": action},
	})
}

// LogScan logs the result of a workspace scan
func (l *EventLogger) LogScan(dir string, files, newFiles, dirty int) error {
	return l.Log(&Event{
		Level: LevelDebug,
		Event: EventScan,
		Path:  dir,
		Extra: map[string]string{
			"files": strconv.Itoa(files),
			"new":   strconv.Itoa(newFiles),
			"dirty": strconv.Itoa(dirty),
		},
	})
}

// LogIndex logs the outcome of indexing one file
func (l *EventLogger) LogIndex(artifactID int64, path, state, extractor, reason string, chars int, duration time.Duration, errMsg string) error {
	level := LevelInfo
	if errMsg != "" {
		level = LevelWarning
	}

	var extra map[string]string
	if chars > 0 {
		extra = map[string]string{"chars": strconv.Itoa(chars)}
	}

	return l.Log(&Event{
		Level:      level,
		Event:      EventIndex,
		ArtifactID: artifactID,
		Path:       path,
		State:      state,
		Extractor:  extractor,
		Reason:     reason,
		Duration:   duration.Milliseconds(),
		Error:      errMsg,
		Extra:      extra,
	})
}

// RunCounts are the per-outcome totals of a batch
type RunCounts struct {
	Seen, Indexed, Failed, NotExtractable int
}

// LogRun logs the summary of a batch indexing pass
func (l *EventLogger) LogRun(runID, dir, mode string, counts RunCounts, fullText bool, duration time.Duration) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventRun,
		Path:     dir,
		Duration: duration.Milliseconds(),
		Extra: map[string]string{
			"run_id":          runID,
			"mode":            mode,
			"seen":            strconv.Itoa(counts.Seen),
			"indexed":         strconv.Itoa(counts.Indexed),
			"failed":          strconv.Itoa(counts.Failed),
			"not_extractable": strconv.Itoa(counts.NotExtractable),
			"fts":             strconv.FormatBool(fullText),
		},
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, path string, err error) error {
	return l.Log(&Event{
		Level: LevelError,
		Event: event,
		Path:  path,
		Error: err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
