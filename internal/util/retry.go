package util

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"
	"time"
)

// RetryConfig bounds how often and how patiently a transient failure is retried.
type RetryConfig struct {
	MaxAttempts int           // including the first
	InitialWait time.Duration // doubled after every failed attempt
	MaxWait     time.Duration
}

// DefaultRetryConfig is used for local filesystem access.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 50 * time.Millisecond,
		MaxWait:     2 * time.Second,
	}
}

// StoreRetryConfig is used for SQLite writes that lose a lock race with
// another connection.
func StoreRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 5,
		InitialWait: 25 * time.Millisecond,
		MaxWait:     1 * time.Second,
	}
}

// Backoff returns the wait before attempt n+1 after n failed attempts.
func (c *RetryConfig) Backoff(n int) time.Duration {
	wait := c.InitialWait
	for i := 1; i < n; i++ {
		wait *= 2
		if wait >= c.MaxWait {
			return c.MaxWait
		}
	}
	return min(wait, c.MaxWait)
}

// lower-cased message fragments of conditions likely to clear on their own
var transientPatterns = []string{
	"database is locked",
	"database table is locked",
	"sqlite_busy",
	"resource temporarily unavailable",
	"interrupted system call",
	"timed out",
	"timeout",
	"i/o error",
	"too many open files",
}

// IsRetryableError reports whether err looks transient.
// Missing files and permission problems never are.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EAGAIN, syscall.EINTR, syscall.ETIMEDOUT, syscall.EIO, syscall.EMFILE, syscall.ENFILE:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// RetryWithBackoff runs op until it succeeds, fails permanently, runs out of
// attempts, or ctx ends while waiting. A nil cfg means DefaultRetryConfig.
func RetryWithBackoff[T any](ctx context.Context, cfg *RetryConfig, name string, op func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	attempts := max(cfg.MaxAttempts, 1)

	var zero T
	for attempt := 1; ; attempt++ {
		result, err := op()
		switch {
		case err == nil:
			if attempt > 1 {
				DebugLog("Retry: %s succeeded on attempt %d/%d", name, attempt, attempts)
			}
			return result, nil
		case !IsRetryableError(err):
			return result, err
		case attempt >= attempts:
			WarnLog("Retry: %s failed after %d attempts: %v", name, attempts, err)
			return result, fmt.Errorf("max retries exceeded (%d attempts): %w", attempts, err)
		}

		wait := cfg.Backoff(attempt)
		DebugLog("Retry: %s failed (attempt %d/%d), retrying in %v: %v", name, attempt, attempts, wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s: %w (last error: %v)", name, ctx.Err(), err)
		case <-timer.C:
		}
	}
}

// Retry is RetryWithBackoff for operations without a result.
func Retry(ctx context.Context, cfg *RetryConfig, name string, op func() error) error {
	_, err := RetryWithBackoff(ctx, cfg, name, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// RetryableStat stats a file, retrying transient failures
func RetryableStat(path string, cfg *RetryConfig) (fs.FileInfo, error) {
	return RetryWithBackoff(context.Background(), cfg, "stat("+path+")", func() (fs.FileInfo, error) {
		return os.Stat(path)
	})
}

// RetryableOpen opens a file, retrying transient failures
func RetryableOpen(path string, cfg *RetryConfig) (*os.File, error) {
	return RetryWithBackoff(context.Background(), cfg, "open("+path+")", func() (*os.File, error) {
		return os.Open(path)
	})
}

// RetryableReadDir lists a directory, retrying transient failures until ctx ends
func RetryableReadDir(ctx context.Context, path string, cfg *RetryConfig) ([]os.DirEntry, error) {
	return RetryWithBackoff(ctx, cfg, "readdir("+path+")", func() ([]os.DirEntry, error) {
		return os.ReadDir(path)
	})
}
