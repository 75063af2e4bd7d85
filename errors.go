package ghostcore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRunning is returned when an operation requires a started runtime.
	ErrNotRunning = errors.New("ghostcore: runtime is not running")
	// ErrOutOfMemory is returned when the arena heap is exhausted or too
	// fragmented. Recoverable: free memory and retry, or drop the record.
	ErrOutOfMemory = errors.New("ghostcore: arena heap exhausted")
	// ErrQueueFull is returned when the ingest queue has no room. The
	// document is dropped; the caller may retry later.
	ErrQueueFull = errors.New("ghostcore: ingest queue full")
	// ErrRateLimited is returned when ingest exceeds the configured rate.
	ErrRateLimited = errors.New("ghostcore: ingest rate limited")
	// ErrLogFull is returned when the vector log region has no room for
	// another record.
	ErrLogFull = errors.New("ghostcore: vector log region full")
)

// ErrDocumentTooLarge indicates a document that exceeds the configured
// ingest limit.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDocumentTooLarge struct {
	Size  int
	Limit int
	cause error
}

func (e *ErrDocumentTooLarge) Error() string {
	return fmt.Sprintf("document too large: %d bytes, limit %d", e.Size, e.Limit)
}

func (e *ErrDocumentTooLarge) Unwrap() error { return e.cause }
