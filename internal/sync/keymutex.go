package sync

import "sync"

// keyMutex is a cooperative per-key lock. A merge marks its key busy
// before its first suspension point; a second concurrent merge for the
// same key observes the marker and returns without side effects.
//
// This is a single-process guard only. Two separate processes sharing
// one database are not protected; see the package doc.
type keyMutex struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyMutex() *keyMutex {
	return &keyMutex{held: make(map[string]struct{})}
}

// TryLock marks key busy. Returns false if it already is.
func (k *keyMutex) TryLock(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, busy := k.held[key]; busy {
		return false
	}
	k.held[key] = struct{}{}
	return true
}

// Unlock clears the marker. Must be called exactly once per successful
// TryLock, on success or failure (defer it).
func (k *keyMutex) Unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.held, key)
}
