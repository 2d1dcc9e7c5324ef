package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrBlobNotFound is returned when a key doesn't exist.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrInvalidKey is returned when a key is malformed.
	ErrInvalidKey = errors.New("invalid storage key")
)

// BlobError wraps an error with the key and operation that failed.
type BlobError struct {
	Op  string
	Key string
	Err error
}

func (e *BlobError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *BlobError) Unwrap() error {
	return e.Err
}

// NewBlobError creates a new BlobError.
func NewBlobError(op, key string, err error) *BlobError {
	return &BlobError{Op: op, Key: key, Err: err}
}

// IsNotFound reports whether err indicates a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBlobNotFound)
}
