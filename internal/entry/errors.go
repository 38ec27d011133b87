package entry

import (
	"errors"
	"fmt"

	"github.com/roach88/flatdoc/internal/store"
)

var (
	// ErrConflict is matched by every *ConflictError.
	ErrConflict = errors.New("flatdoc: conflict")

	// ErrNotFound is returned when no document exists for an id.
	ErrNotFound = store.ErrNotFound

	// ErrMissingID is returned by Update for a document without an id.
	ErrMissingID = errors.New("flatdoc: document has no id")

	// ErrInvalidID is returned when the id field is not a non-empty string.
	ErrInvalidID = errors.New("flatdoc: id must be a non-empty string")

	// ErrInvalidTimestamp is returned when a caller-supplied updated field
	// is not in doc.TimeLayout.
	ErrInvalidTimestamp = errors.New("flatdoc: invalid updated timestamp")

	// ErrClosed is returned by operations on a closed Manager.
	ErrClosed = errors.New("flatdoc: manager closed")
)

// ConflictError reports a create or update that was refused because of the
// stored state of a document. The caller can recover by choosing a new id
// or by re-reading the document and retrying.
type ConflictError struct {
	// ID is the document id.
	ID string

	// Reason describes what conflicted.
	Reason string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("flatdoc: conflict on %q: %s", e.ID, e.Reason)
}

// Is makes errors.Is(err, ErrConflict) true for every ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// IsConflict returns true if err is or wraps a ConflictError.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
