package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when no item has the given id.
	ErrNotFound = errors.New("item not found")

	// ErrDimensionMismatch means a vector does not match the dimensionality
	// already stored, usually after the embedding model was changed.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyVector is returned when inserting or querying with no values.
	ErrEmptyVector = errors.New("empty vector")
)

// IndexError reports a failure of the backing store.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

// IsIndexError reports whether err is or wraps an *IndexError.
func IsIndexError(err error) bool {
	var target *IndexError
	return errors.As(err, &target)
}

func indexErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IndexError{Op: op, Err: err}
}
