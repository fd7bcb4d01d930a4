// Package remote defines the contract for the shared remote tree that
// all devices rendezvous on, plus an in-memory implementation (used by
// the hub and by tests) and a WebSocket client implementation.
//
// The remote tree is addressed as {root}/{collection}/{key}; the root
// (tenant path) is fixed at construction, so the interface speaks in
// collection and key. Writes are full-value overwrites at a key, not
// field patches. Each key carries a monotonically increasing revision
// used by CompareAndSet to implement atomic read-modify-write.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Snapshot is the full current content of one collection: a flat map
// from key to record value.
type Snapshot map[string]json.RawMessage

// Sentinel errors for store operations.
var (
	// ErrKeyNotFound is returned by Get when the key has no value.
	ErrKeyNotFound = errors.New("remote: key not found")

	// ErrRevisionMismatch is returned by CompareAndSet when the key's
	// current revision differs from the expected one, meaning a
	// concurrent writer got there first.
	ErrRevisionMismatch = errors.New("remote: revision mismatch")

	// ErrAborted is returned by a transaction update function to abort
	// the transaction without writing. RunTransaction passes it through
	// unchanged.
	ErrAborted = errors.New("remote: transaction aborted")
)

// Store is the Remote Shared Store contract consumed by the sync
// engine.
//
// All writes are last-write-wins at the transport level; the only
// atomic primitive is CompareAndSet, which RunTransaction builds on.
// Subscribe delivers the entire collection snapshot on every change
// under it, mirroring a value-changed listener at collection
// granularity, and once immediately upon subscribing.
type Store interface {
	// Set writes value as the full content of {collection}/{key},
	// overwriting whatever was there.
	Set(ctx context.Context, collection, key string, value any) error

	// Get reads the current value at {collection}/{key}.
	// Returns ErrKeyNotFound if the key has no value.
	Get(ctx context.Context, collection, key string) (json.RawMessage, error)

	// GetRev reads the current value and revision at {collection}/{key}.
	// A missing key yields (nil, 0, nil) so CompareAndSet with rev 0 can
	// express create-if-absent.
	GetRev(ctx context.Context, collection, key string) (json.RawMessage, int64, error)

	// GetAll reads the entire collection as a snapshot.
	GetAll(ctx context.Context, collection string) (Snapshot, error)

	// Remove deletes {collection}/{key}. Removing an absent key is not
	// an error.
	Remove(ctx context.Context, collection, key string) error

	// CompareAndSet writes value only if the key's current revision
	// equals rev (rev 0 = key must not exist). Returns the new revision
	// on success and ErrRevisionMismatch on conflict.
	CompareAndSet(ctx context.Context, collection, key string, value any, rev int64) (int64, error)

	// Subscribe registers fn to receive the collection snapshot on
	// every change. fn is invoked once immediately with the current
	// snapshot. The returned cancel func stops delivery.
	Subscribe(ctx context.Context, collection string, fn func(Snapshot)) (cancel func(), err error)

	// Connectivity registers fn to observe transport-level
	// connected/disconnected transitions. fn is invoked once
	// immediately with the current state.
	Connectivity(fn func(connected bool)) (cancel func())
}

// Session identifies an authenticated (possibly anonymous) device
// session against the remote tree.
type Session struct {
	UID string
}

// Identity issues session tokens gating access to the remote tree.
type Identity interface {
	// SignInAnonymously establishes an anonymous session.
	SignInAnonymously(ctx context.Context) (Session, error)

	// OnAuthStateChanged registers fn to observe session changes; fn
	// receives nil on sign-out. The returned cancel func stops
	// delivery.
	OnAuthStateChanged(fn func(*Session)) (cancel func())
}

// DefaultTxnAttempts bounds the CAS retry loop in RunTransaction.
const DefaultTxnAttempts = 10

// RunTransaction performs an atomic read-modify-write of a single key
// using a CompareAndSet retry loop.
//
// update receives the current value (nil if the key is absent) and
// returns the replacement value. Returning ErrAborted cancels the
// transaction without writing; any other error aborts and is returned
// wrapped. If concurrent writers keep winning the CAS for
// DefaultTxnAttempts rounds, the last ErrRevisionMismatch is returned.
func RunTransaction(ctx context.Context, s Store, collection, key string, update func(current json.RawMessage) (any, error)) error {
	var lastErr error
	for attempt := 0; attempt < DefaultTxnAttempts; attempt++ {
		current, rev, err := s.GetRev(ctx, collection, key)
		if err != nil {
			return fmt.Errorf("transaction read failed: %w", err)
		}

		next, err := update(current)
		if err != nil {
			if errors.Is(err, ErrAborted) {
				return err
			}
			return fmt.Errorf("transaction update failed: %w", err)
		}

		if _, err := s.CompareAndSet(ctx, collection, key, next, rev); err != nil {
			if errors.Is(err, ErrRevisionMismatch) {
				lastErr = err
				continue
			}
			return fmt.Errorf("transaction write failed: %w", err)
		}
		return nil
	}
	return fmt.Errorf("transaction contention on %s/%s: %w", collection, key, lastErr)
}
