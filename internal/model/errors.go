package model

import "errors"

// Error taxonomy shared by the cache, router and ledger. Callers wrap these
// with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	// ErrTransport covers origin fetch failures and timeouts.
	ErrTransport = errors.New("transport error")

	// ErrValidation marks a malformed event or record.
	ErrValidation = errors.New("validation error")

	// ErrState marks an event for a symbol without a quote row.
	ErrState = errors.New("state error")

	// ErrMergeConflict marks duplicate ledger keys.
	ErrMergeConflict = errors.New("merge conflict")

	// ErrSink marks a failed bulk read or write.
	ErrSink = errors.New("sink error")
)
