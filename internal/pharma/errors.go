package pharma

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that a remote resource or stored row no longer
// exists. For detail fetches this is a normal outcome, not a bug: the
// item is recorded as failed without retry.
var ErrNotFound = errors.New("not found")

// TransientError wraps network and timeout conditions that are worth
// retrying within the configured budget.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ExtractionError signals that a page loaded but required fields could
// not be parsed. Retrying will not change a structural mismatch, so
// these are recorded and surfaced loudly: they mean the adapter has
// drifted against a changed remote site.
type ExtractionError struct {
	URL    string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.URL, e.Reason)
}

// IsExtraction reports whether err is a structural extraction failure.
func IsExtraction(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}

// PersistenceError wraps store failures. These are fatal to the current
// run: an unsaved extraction must never be silently dropped.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistence reports whether err is a store failure.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
