package documents

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both a missing document and one owned by another
	// user; callers cannot tell the two apart.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicatePath rejects an upload whose storage path collides with a
	// live document.
	ErrDuplicatePath = errors.New("a document with this name already exists for this category and date")

	// ErrStoreUnavailable and ErrDBUnavailable classify guard failures for
	// the HTTP layer.
	ErrStoreUnavailable = errors.New("object store unavailable")
	ErrDBUnavailable    = errors.New("metadata store unavailable")
)

// ValidationError rejects malformed upload or list input before any backend
// is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
