package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entity is not found in the database.
var ErrNotFound = errors.New("entity not found")

// FetchError wraps a marketplace collaborator failure. It is scoped to
// a single model's pass and never aborts a whole run.
type FetchError struct {
	Model string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed for model %s: %v", e.Model, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StorageError wraps a storage failure. Retryable errors are
// serialization/deadlock conflicts that may succeed on a fresh
// transaction; everything else is fatal to the model's pass.
type StorageError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsRetryableStorage reports whether err is a storage conflict worth
// retrying on a new transaction.
func IsRetryableStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Retryable
}
