package docstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrInvalid marks a request rejected before reaching the backend.
	ErrInvalid = errors.New("docstore: invalid request")
)

// StoreError wraps a backend failure (network, permission, quota).
type StoreError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StoreError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("docstore: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("docstore: %s %s failed: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalid) {
		return err
	}
	return &StoreError{Op: op, Collection: collection, Err: err}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}
