package feed

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrNotMounted       = errors.New("feed engine not mounted")
	ErrDisposed         = errors.New("feed engine disposed")
	ErrNotAuthenticated = errors.New("viewer is not authenticated")
)

// FetchError wraps a failed page fetch with the operation and mode that issued it
type FetchError struct {
	Err  error
	Op   string
	Mode AuthMode
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("feed %s (%s) failed: %v", e.Op, e.Mode, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a fetch error for op
func NewFetchError(op string, mode AuthMode, err error) error {
	return &FetchError{Op: op, Mode: mode, Err: err}
}

// IsFetchError checks if an error is a fetch error
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
