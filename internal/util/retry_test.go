package util

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"EAGAIN", syscall.EAGAIN, true},
		{"EMFILE", syscall.EMFILE, true},
		{"ENOENT", syscall.ENOENT, false},
		{"not exist", os.ErrNotExist, false},
		{"permission", os.ErrPermission, false},
		{"cancelled", context.Canceled, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"wrapped sqlite busy", fmt.Errorf("upsert artifact: %w", errors.New("database is locked")), true},
		{"schema error", errors.New("no such column: path"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 6, InitialWait: 10 * time.Millisecond, MaxWait: 50 * time.Millisecond}
	want := []time.Duration{10, 20, 40, 50, 50}
	for i, w := range want {
		if got := cfg.Backoff(i + 1); got != w*time.Millisecond {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w*time.Millisecond)
		}
	}
}

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
	}
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("success after transient failures", func(t *testing.T) {
		attempts := 0
		got, err := RetryWithBackoff(ctx, fastRetry(), "flaky", func() (string, error) {
			attempts++
			if attempts < 3 {
				return "", errors.New("database is locked")
			}
			return "ok", nil
		})
		if err != nil || got != "ok" {
			t.Fatalf("got %q, %v", got, err)
		}
		if attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		attempts := 0
		_, err := RetryWithBackoff(ctx, fastRetry(), "busy", func() (int, error) {
			attempts++
			return 0, syscall.EAGAIN
		})
		if !errors.Is(err, syscall.EAGAIN) {
			t.Errorf("expected wrapped EAGAIN, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		attempts := 0
		_, err := RetryWithBackoff(ctx, fastRetry(), "missing", func() (int, error) {
			attempts++
			return 0, syscall.ENOENT
		})
		if !errors.Is(err, syscall.ENOENT) || attempts != 1 {
			t.Errorf("expected one attempt with ENOENT, got %d attempts, %v", attempts, err)
		}
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		slow := &RetryConfig{MaxAttempts: 5, InitialWait: time.Hour, MaxWait: time.Hour}
		attempts := 0
		_, err := RetryWithBackoff(cctx, slow, "slow", func() (int, error) {
			attempts++
			cancel()
			return 0, syscall.EAGAIN
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if attempts != 1 {
			t.Errorf("expected 1 attempt, got %d", attempts)
		}
	})
}

func TestRetry(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(), "no result", func() error {
		attempts++
		if attempts < 2 {
			return syscall.EAGAIN
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryableStat_MissingFile(t *testing.T) {
	_, err := RetryableStat("/definitely/not/here.txt", fastRetry())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestRetryableReadDir(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(dir+"/a.txt", []byte("a"), 0o644)

	entries, err := RetryableReadDir(context.Background(), dir, fastRetry())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "a.txt" {
		t.Errorf("unexpected entries: %v", entries)
	}
}
