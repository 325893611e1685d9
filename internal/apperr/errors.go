// Package apperr holds the error taxonomy shared by the store, the service
// layer and the outer surfaces (CLI, HTTP, MCP).
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("conflict")
	ErrCorrupt       = errors.New("corrupt mem")
	ErrInvalidPath   = errors.New("invalid path")
)

// CorruptError reports a mem file whose content could not be decoded.
// It matches both ErrCorrupt and the underlying parse error.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt mem %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() []error {
	return []error{ErrCorrupt, e.Err}
}

// NotFound wraps ErrNotFound with the logical path that was missing.
func NotFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

// AlreadyExists wraps ErrAlreadyExists with the conflicting target.
func AlreadyExists(what string) error {
	return fmt.Errorf("%w: %s", ErrAlreadyExists, what)
}
