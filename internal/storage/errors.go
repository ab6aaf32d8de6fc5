package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a file, chunk, or filename is unknown.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateFilename is returned when a registry create collides on filename.
	ErrDuplicateFilename = errors.New("duplicate filename")
)

// WriteError wraps a failure of the underlying storage medium to accept a write.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
