package media

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the event carries no image with the requested file id.
	ErrNotFound = errors.New("image attachment not found")

	// ErrIO is returned when the image could not be read, downloaded or stored.
	ErrIO = errors.New("image download failed")
)

// FetchError wraps errors with additional context about the fetch failure.
type FetchError struct {
	// Op is the operation that failed (e.g., "Fetch", "store").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("media: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("media: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *FetchError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func ioError(op string, err error, details string) *FetchError {
	return &FetchError{Op: op, Err: fmt.Errorf("%w: %w", ErrIO, err), Details: details}
}
