package embedding

import (
	"errors"
	"fmt"
)

// EmbeddingError reports that the embedding model could not produce a vector.
type EmbeddingError struct {
	Op    string
	Model string
	Err   error
}

func (e *EmbeddingError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("embedding %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("embedding %s (%s): %v", e.Op, e.Model, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// IsEmbeddingError reports whether err is or wraps an *EmbeddingError.
func IsEmbeddingError(err error) bool {
	var target *EmbeddingError
	return errors.As(err, &target)
}
