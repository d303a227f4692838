package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("Line is not valid JSON: %v\nLine: %s", err, scanner.Text())
		}
		events = append(events, e)
	}
	return events
}

func TestNewEventLogger(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "logs")

	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(logger.Path()); os.IsNotExist(err) {
		t.Errorf("Event log file was not created at %s", logger.Path())
	}

	filename := filepath.Base(logger.Path())
	if len(filename) != len("events-20060102-150405.jsonl") {
		t.Errorf("Event log filename format incorrect: %s", filename)
	}
}

func TestEventLogger_LogIndex(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogIndex(7, "/in/a.txt", "INDEXED", "plain", "", 19, 1500*time.Millisecond, "")
	logger.LogIndex(8, "/in/b.pdf", "FAILED", "pdf", "", 0, time.Millisecond, "OCR required but binaries missing")
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}

	ok := events[0]
	if ok.Event != EventIndex || ok.Level != LevelInfo || ok.ArtifactID != 7 || ok.State != "INDEXED" {
		t.Errorf("Unexpected success event: %+v", ok)
	}
	if ok.Duration != 1500 || ok.Extra["chars"] != "19" {
		t.Errorf("Expected duration 1500ms and 19 chars, got %d / %s", ok.Duration, ok.Extra["chars"])
	}

	failed := events[1]
	if failed.Level != LevelWarning || failed.Error == "" {
		t.Errorf("Failed outcome should be a warning with an error, got %+v", failed)
	}
}

func TestEventLogger_LogRun(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	counts := RunCounts{Seen: 3, Indexed: 2, Failed: 1}
	logger.LogRun("run-1", "/in", "all", counts, true, 2*time.Second)
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	e := events[0]
	expected := map[string]string{
		"run_id": "run-1", "mode": "all", "seen": "3", "indexed": "2",
		"failed": "1", "not_extractable": "0", "fts": "true",
	}
	for k, v := range expected {
		if e.Extra[k] != v {
			t.Errorf("extra[%s] = %q, expected %q", k, e.Extra[k], v)
		}
	}
}

func TestEventLogger_MigrateAndError(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogMigrate("rebuild", "rebuild artifacts (legacy column source_type)")
	logger.LogScan("/in", 4, 1, 2)
	logger.LogError(EventIndex, "/in/x", errors.New("disk I/O error"))
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].Event != EventMigrate || events[0].Extra["action"] != "rebuild" {
		t.Errorf("Unexpected migrate event: %+v", events[0])
	}
	if events[1].Extra["dirty"] != "2" {
		t.Errorf("Unexpected scan event: %+v", events[1])
	}
	if events[2].Level != LevelError || events[2].Error != "disk I/O error" {
		t.Errorf("Unexpected error event: %+v", events[2])
	}
}

func TestEventLogger_ConcurrentWrites(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				logger.LogIndex(int64(id*10+j), "/in/f", "INDEXED", "plain", "", 1, 0, "")
			}
		}(i)
	}
	wg.Wait()
	logger.Close()

	if n := len(readEvents(t, logger.Path())); n != 100 {
		t.Errorf("Expected 100 events, got %d", n)
	}
}

func TestEventLogger_NullLogger(t *testing.T) {
	logger := NullLogger()

	if err := logger.Log(&Event{Level: LevelInfo, Event: EventScan}); err != nil {
		t.Errorf("NullLogger.Log should not return error, got: %v", err)
	}
	if err := logger.LogIndex(1, "/x", "INDEXED", "plain", "", 1, 0, ""); err != nil {
		t.Errorf("NullLogger.LogIndex should not return error, got: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("NullLogger.Close should not return error, got: %v", err)
	}
	if path := logger.Path(); path != "" {
		t.Errorf("NullLogger.Path should return empty string, got: %s", path)
	}
}

func TestEventLogger_AutoTimestamp(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	if err := logger.Log(&Event{Level: LevelInfo, Event: EventScan}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 1 || events[0].Timestamp.IsZero() {
		t.Fatal("Expected timestamp to be auto-set")
	}
	if time.Since(events[0].Timestamp) > 5*time.Second {
		t.Errorf("Timestamp is too old: %v", events[0].Timestamp)
	}
}

func TestEventLogger_LogLevelFiltering(t *testing.T) {
	testCases := []struct {
		name     string
		minLevel EventLevel
		expected int
	}{
		{"debug logs everything", LevelDebug, 4},
		{"info skips debug", LevelInfo, 3},
		{"warning keeps warning and error", LevelWarning, 2},
		{"error keeps only error", LevelError, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			logger, err := NewEventLogger(t.TempDir(), tc.minLevel)
			if err != nil {
				t.Fatalf("NewEventLogger failed: %v", err)
			}
			for _, level := range []EventLevel{LevelDebug, LevelInfo, LevelWarning, LevelError} {
				logger.Log(&Event{Level: level, Event: EventIndex})
			}
			logger.Close()

			if n := len(readEvents(t, logger.Path())); n != tc.expected {
				t.Errorf("Expected %d events, got %d", tc.expected, n)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("warning") != LevelWarning {
		t.Error("warning should parse")
	}
	if ParseLevel("loud") != LevelInfo {
		t.Error("unknown levels default to info")
	}
}
