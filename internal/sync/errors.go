package sync

import "errors"

// Sentinel errors surfaced by engine operations.
var (
	// ErrSyncUnavailable means there is no session, no connectivity or
	// the remote client is not initialized. The local mutation remains
	// the durable copy; the next sweep or a manual retry resends it.
	ErrSyncUnavailable = errors.New("sync: remote unavailable")

	// ErrTransactionAborted means the atomic read-modify-write detected
	// a conflicting concurrent write and ran out of retries. The
	// operation is safe to re-invoke.
	ErrTransactionAborted = errors.New("sync: transaction aborted")
)
