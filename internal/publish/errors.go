package publish

import (
	"errors"
	"fmt"
)

var (
	// ErrFileNotFound reports that the item file is missing from the working tree.
	ErrFileNotFound = errors.New("content file not found")
	// ErrNoRemote reports that the configured remote does not exist.
	ErrNoRemote = errors.New("git remote not configured")
)

// PublishError wraps a failure in one publication step (stat, add, commit,
// remote, push).
type PublishError struct {
	Op  string
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Op, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

func opError(op string, err error) error {
	return &PublishError{Op: op, Err: err}
}
