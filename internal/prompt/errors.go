package prompt

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("prompt template not found")
	ErrNoActiveTemplate  = fmt.Errorf("no active template for workflow: %w", ErrNotFound)
	ErrInvariantViolated = errors.New("active template invariant violated")
)

// ValidationError rejects a save before anything is written.
type ValidationError struct {
	Reason  string
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return "missing variables: " + strings.Join(e.Missing, ", ")
	}
	return e.Reason
}

// PersistenceError wraps a storage failure. The transaction it happened in
// has been rolled back, unless Err is ErrInvariantViolated, which is only
// detected after commit and needs manual repair.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
