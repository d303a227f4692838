package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrUnsupported indicates a file format or operation is not supported
	ErrUnsupported = errors.New("unsupported")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMigration indicates a schema migration script failed
	ErrMigration = errors.New("schema migration failed")

	// ErrStoreLocked indicates another process holds the store's write lock
	ErrStoreLocked = errors.New("store is locked by another process")

	// ErrFileVanished indicates a file disappeared between listing and indexing
	ErrFileVanished = errors.New("file vanished")

	// ErrInvalidStatus indicates a lifecycle status outside the stored vocabulary
	ErrInvalidStatus = errors.New("invalid lifecycle status")
)
