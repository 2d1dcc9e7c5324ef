package checkpoint

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a checkpoint ID has no blob in storage.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrCorrupted is returned when a loaded checkpoint's integrity hash
	// does not match its recomputed hash, or a schema-version migration
	// was required and unavailable.
	ErrCorrupted = errors.New("checkpoint corrupted")

	// ErrInvariant is returned when a loaded checkpoint's work-item
	// invariants don't hold.
	ErrInvariant = errors.New("checkpoint violates invariants")
)

// InvariantError names which invariant failed and why.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvariant, e.Reason)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }
