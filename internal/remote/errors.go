package remote

import (
	"errors"
	"fmt"

	"github.com/divvyhq/divvy/internal/models"
)

// The sync worker classifies every per-entry failure into exactly one of
// these kinds. Only NetworkError drives backoff-and-retry; everything else
// removes or parks the entry.

// NetworkError is a retryable transport failure (connection refused,
// timeout, 5xx). The queued entry stays at the head and is retried after
// backoff.
type NetworkError struct {
	Op  string // "create expense", "delete settlement", ...
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError is a non-retryable rejection of the payload itself.
// It is surfaced to the user immediately and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// ConflictError means the target entity was modified or deleted remotely
// while the local mutation was queued. The server is authoritative: the
// local mutation is discarded and the entity refreshed (or purged, when
// Gone is set).
type ConflictError struct {
	EntityType models.EntityType
	EntityID   string
	// Gone is true when the target no longer exists on the server.
	Gone   bool
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Gone {
		return fmt.Sprintf("conflict: %s %s was deleted remotely", e.EntityType, e.EntityID)
	}
	return fmt.Sprintf("conflict on %s %s: %s", e.EntityType, e.EntityID, e.Reason)
}

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// AsConflict returns the wrapped ConflictError, or nil.
func AsConflict(err error) *ConflictError {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}
