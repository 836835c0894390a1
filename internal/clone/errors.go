package clone

import (
	"errors"
	"fmt"
)

var (
	// ErrFatal marks failures that leave the test environment unusable.
	// Callers should abort the whole run instead of retrying.
	ErrFatal = errors.New("fatal clone error")
	// ErrLocked is returned when another process is cloning the same target.
	ErrLocked = errors.New("clone target is locked by another process")
)

// FatalError is returned when dropping and recreating an existing clone fails.
type FatalError struct {
	Target string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("recreate test database %s: %v", e.Target, e.Err)
}

func (e *FatalError) Unwrap() []error { return []error{ErrFatal, e.Err} }
