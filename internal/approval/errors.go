package approval

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports an unknown token.
	ErrNotFound = errors.New("approval token not found")
	// ErrAlreadyDecided matches every *AlreadyDecidedError.
	ErrAlreadyDecided = errors.New("approval already decided")
	// ErrCorrupt reports a persisted store that fails schema validation.
	ErrCorrupt = errors.New("approval store is corrupt")
	// ErrInvalidTransition reports a decision to a non-terminal status.
	ErrInvalidTransition = errors.New("invalid approval transition")
)

// AlreadyDecidedError carries the terminal status a token already holds.
type AlreadyDecidedError struct {
	Status Status
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("approval already processed: currently %s", e.Status)
}

func (e *AlreadyDecidedError) Is(target error) bool {
	return target == ErrAlreadyDecided
}
