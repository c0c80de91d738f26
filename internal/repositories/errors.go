package repositories

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable wraps transport failures against Redis or Postgres.
	// Callers may retry with backoff; repositories never retry writes themselves.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEventConflict is returned when a compound key already holds a different event
	ErrEventConflict = errors.New("event key already holds a different event")

	// ErrBodyNotVisible is returned when an index entry stays without a body after all read retries
	ErrBodyNotVisible = errors.New("event body not visible")
)

// PartialAppendError reports an event whose body was written but whose
// index entry was not. The body is invisible to readers until Reindex succeeds.
type PartialAppendError struct {
	LocationID string
	Key        string
	Err        error
}

func (e *PartialAppendError) Error() string {
	return fmt.Sprintf("event %s in location %s written without index entry: %v", e.Key, e.LocationID, e.Err)
}

func (e *PartialAppendError) Unwrap() error {
	return e.Err
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", ErrStoreUnavailable, op, err)
}
