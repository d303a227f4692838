package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/franz/project-copilot/internal/util"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // SQLite driver
)

// Capabilities is computed once when the store is opened and describes
// which optional engine features the store is using.
type Capabilities struct {
	// FullText is true when the FTS5 projection is maintained and searched
	FullText bool
	// FullTextReason explains why FullText is false ("disabled", or the engine error)
	FullTextReason string
}

// Store is the artifact store: metadata, extracted text, the full-text
// projection, and index run history in one SQLite file.
type Store struct {
	db   *sql.DB
	path string
	caps Capabilities

	lastReconcile ReconcileReport

	writeMu  sync.Mutex
	fileLock *flock.Flock
	lockWait time.Duration
}

// OpenOptions holds options for opening a store
type OpenOptions struct {
	// FullText requests the FTS5 projection. It is only used if the engine supports it.
	FullText bool
	// LockFile serializes writers across processes with <db>.lock
	LockFile bool
	// LockTimeout bounds how long a write waits for the lock file (default 10s)
	LockTimeout time.Duration
	// BusyTimeout is the SQLite busy_timeout (default 5s)
	BusyTimeout time.Duration
}

// DefaultOpenOptions enables full-text search and the cross-process lock
func DefaultOpenOptions() *OpenOptions {
	return &OpenOptions{
		FullText:    true,
		LockFile:    true,
		LockTimeout: 10 * time.Second,
		BusyTimeout: 5 * time.Second,
	}
}

// Open initializes or upgrades the store at path with default options
func Open(path string) (*Store, error) {
	return OpenWithOptions(context.Background(), path, nil)
}

// OpenWithOptions initializes or upgrades the store at path.
//
// It is safe to call on every process start: pending migration scripts are
// applied, the structural reconciliation pass converges any older layout to
// the current one, and the full-text projection is created or dropped to
// match opts.FullText. A migration failure is fatal and leaves the previous
// schema untouched; a missing full-text engine only clears Capabilities.FullText.
func OpenWithOptions(ctx context.Context, path string, opts *OpenOptions) (*Store, error) {
	if opts == nil {
		opts = DefaultOpenOptions()
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 10 * time.Second
	}

	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", buildDSN(path, opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer; one long-lived connection also
	// keeps per-connection pragmas in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, path: path, lockWait: opts.LockTimeout}
	if opts.LockFile && !memory {
		s.fileLock = flock.New(path + ".lock")
	}

	if err := s.applyPragmas(ctx, memory); err != nil {
		db.Close()
		return nil, err
	}

	unlock, err := s.lockWrites(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	defer unlock()

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.reconcile(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema reconciliation failed: %w", err)
	}

	s.caps = s.ensureFullText(ctx, opts.FullText)
	s.ensureIndexes(ctx)

	return s, nil
}

func buildDSN(path string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + q.Encode()
}

func (s *Store) applyPragmas(ctx context.Context, memory bool) error {
	pragmas := []string{
		// NORMAL is safe with WAL and avoids an fsync per commit
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if !memory {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}

	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for custom queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

// Capabilities returns the feature set computed at open time
func (s *Store) Capabilities() Capabilities {
	return s.caps
}

// SQLiteVersion returns the SQLite version string
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	err = db.QueryRow("SELECT sqlite_version()").Scan(&version)
	if err != nil {
		return ""
	}
	return version
}

// FullTextSupported reports whether the linked SQLite engine can create FTS5 tables
func FullTextSupported() bool {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return false
	}
	defer db.Close()

	_, err = db.Exec("CREATE VIRTUAL TABLE probe USING fts5(body)")
	return err == nil
}

// CheckIntegrity runs PRAGMA integrity_check on the database
func (s *Store) CheckIntegrity(ctx context.Context) error {
	var result string
	err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// lockWrites serializes writers: a mutex within the process and, when
// configured, an advisory lock file across processes.
func (s *Store) lockWrites(ctx context.Context) (func(), error) {
	s.writeMu.Lock()
	if s.fileLock == nil {
		return s.writeMu.Unlock, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	locked, err := s.fileLock.TryLockContext(lockCtx, 25*time.Millisecond)
	if err != nil || !locked {
		s.writeMu.Unlock()
		if err == nil || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", util.ErrStoreLocked, s.fileLock.Path())
		}
		return nil, fmt.Errorf("failed to acquire store lock: %w", err)
	}

	return func() {
		if err := s.fileLock.Unlock(); err != nil {
			util.WarnLog("Failed to release store lock %s: %v", s.fileLock.Path(), err)
		}
		s.writeMu.Unlock()
	}, nil
}

// Transaction executes a function within a transaction
func (s *Store) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// write runs fn in its own transaction under the write lock, retrying
// when SQLite reports the database as busy.
func (s *Store) write(ctx context.Context, name string, fn func(*sql.Tx) error) error {
	unlock, err := s.lockWrites(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return util.Retry(ctx, util.StoreRetryConfig(), name, func() error {
		return s.Transaction(ctx, fn)
	})
}
