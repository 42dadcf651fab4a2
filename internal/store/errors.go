package store

import "errors"

var (
	// ErrNotFound reports a key with no row in its collection.
	ErrNotFound = errors.New("entity not found")

	// ErrStorageUnavailable reports that the local database cannot be opened
	// at all (unwritable data directory, missing driver support). Callers
	// degrade to network-only operation instead of failing.
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrTransactionFailed reports a transactional operation that rolled
	// back. On-disk state is unchanged.
	ErrTransactionFailed = errors.New("storage transaction failed")
)
