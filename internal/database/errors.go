package database

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQL error codes for transient transaction conflicts.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// IsRetryableConflict reports whether err is a transient transaction
// conflict that may succeed on a fresh attempt. Keeping the check here
// isolates the rest of the engine from the storage engine's error
// taxonomy.
func IsRetryableConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	code := string(pqErr.Code)
	return code == pqSerializationFailure || code == pqDeadlockDetected
}
