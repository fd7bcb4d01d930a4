package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// entry is one versioned value in the tree.
type entry struct {
	value json.RawMessage
	rev   int64
}

// Memory is an in-process implementation of Store. The hub uses it as
// the authoritative shared tree; tests use it to simulate multiple
// devices sharing one remote.
//
// Memory is safe for concurrent use. Subscription callbacks run on the
// mutating goroutine after the internal lock is released, so callbacks
// may freely call back into the store.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]*entry
	subs        map[string]map[int64]func(Snapshot)
	connWatch   map[int64]func(bool)
	nextSubID   int64
	connected   bool
}

// NewMemory creates an empty in-memory tree, initially connected.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]*entry),
		subs:        make(map[string]map[int64]func(Snapshot)),
		connWatch:   make(map[int64]func(bool)),
		connected:   true,
	}
}

// Set implements Store.Set.
func (m *Memory) Set(ctx context.Context, collection, key string, value any) error {
	data, err := marshalValue(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	col := m.collection(collection)
	prev := col[key]
	rev := int64(1)
	if prev != nil {
		rev = prev.rev + 1
	}
	col[key] = &entry{value: data, rev: rev}
	fns, snap := m.snapshotLocked(collection)
	m.mu.Unlock()

	notify(fns, snap)
	return nil
}

// Get implements Store.Get.
func (m *Memory) Get(ctx context.Context, collection, key string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.collection(collection)[key]
	if e == nil {
		return nil, ErrKeyNotFound
	}
	return append(json.RawMessage(nil), e.value...), nil
}

// GetRev implements Store.GetRev.
func (m *Memory) GetRev(ctx context.Context, collection, key string) (json.RawMessage, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.collection(collection)[key]
	if e == nil {
		return nil, 0, nil
	}
	return append(json.RawMessage(nil), e.value...), e.rev, nil
}

// GetAll implements Store.GetAll.
func (m *Memory) GetAll(ctx context.Context, collection string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	col := m.collection(collection)
	snap := make(Snapshot, len(col))
	for k, e := range col {
		snap[k] = append(json.RawMessage(nil), e.value...)
	}
	return snap, nil
}

// Remove implements Store.Remove.
func (m *Memory) Remove(ctx context.Context, collection, key string) error {
	m.mu.Lock()
	col := m.collection(collection)
	if _, ok := col[key]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(col, key)
	fns, snap := m.snapshotLocked(collection)
	m.mu.Unlock()

	notify(fns, snap)
	return nil
}

// CompareAndSet implements Store.CompareAndSet.
func (m *Memory) CompareAndSet(ctx context.Context, collection, key string, value any, rev int64) (int64, error) {
	data, err := marshalValue(value)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	col := m.collection(collection)
	e := col[key]
	current := int64(0)
	if e != nil {
		current = e.rev
	}
	if current != rev {
		m.mu.Unlock()
		return 0, fmt.Errorf("%s/%s at rev %d, expected %d: %w", collection, key, current, rev, ErrRevisionMismatch)
	}
	next := current + 1
	col[key] = &entry{value: data, rev: next}
	fns, snap := m.snapshotLocked(collection)
	m.mu.Unlock()

	notify(fns, snap)
	return next, nil
}

// Subscribe implements Store.Subscribe.
func (m *Memory) Subscribe(ctx context.Context, collection string, fn func(Snapshot)) (func(), error) {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	if m.subs[collection] == nil {
		m.subs[collection] = make(map[int64]func(Snapshot))
	}
	m.subs[collection][id] = fn
	_, snap := m.snapshotLocked(collection)
	m.mu.Unlock()

	// Initial snapshot delivery
	fn(snap)

	cancel := func() {
		m.mu.Lock()
		delete(m.subs[collection], id)
		m.mu.Unlock()
	}
	return cancel, nil
}

// Connectivity implements Store.Connectivity.
func (m *Memory) Connectivity(fn func(bool)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.connWatch[id] = fn
	state := m.connected
	m.mu.Unlock()

	fn(state)

	return func() {
		m.mu.Lock()
		delete(m.connWatch, id)
		m.mu.Unlock()
	}
}

// SetConnected flips the simulated transport state and notifies
// connectivity watchers. Test hook.
func (m *Memory) SetConnected(connected bool) {
	m.mu.Lock()
	if m.connected == connected {
		m.mu.Unlock()
		return
	}
	m.connected = connected
	fns := make([]func(bool), 0, len(m.connWatch))
	for _, fn := range m.connWatch {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}

// collection returns the named collection map, creating it if needed.
// Caller must hold m.mu.
func (m *Memory) collection(name string) map[string]*entry {
	col := m.collections[name]
	if col == nil {
		col = make(map[string]*entry)
		m.collections[name] = col
	}
	return col
}

// snapshotLocked copies the collection content and its subscriber list.
// Caller must hold m.mu.
func (m *Memory) snapshotLocked(collection string) ([]func(Snapshot), Snapshot) {
	col := m.collection(collection)
	snap := make(Snapshot, len(col))
	for k, e := range col {
		snap[k] = append(json.RawMessage(nil), e.value...)
	}
	fns := make([]func(Snapshot), 0, len(m.subs[collection]))
	for _, fn := range m.subs[collection] {
		fns = append(fns, fn)
	}
	return fns, snap
}

func notify(fns []func(Snapshot), snap Snapshot) {
	for _, fn := range fns {
		fn(snap)
	}
}

func marshalValue(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		return append(json.RawMessage(nil), raw...), nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return data, nil
}

// MemoryIdentity is an in-process Identity issuing random anonymous
// uids. Used by the hub (per-connection sessions) and by tests.
type MemoryIdentity struct {
	mu       sync.Mutex
	session  *Session
	watchers map[int64]func(*Session)
	nextID   int64
}

// NewMemoryIdentity creates an identity provider with no active
// session.
func NewMemoryIdentity() *MemoryIdentity {
	return &MemoryIdentity{watchers: make(map[int64]func(*Session))}
}

// SignInAnonymously implements Identity.SignInAnonymously.
func (m *MemoryIdentity) SignInAnonymously(ctx context.Context) (Session, error) {
	m.mu.Lock()
	s := Session{UID: uuid.NewString()}
	m.session = &s
	fns := m.watchersLocked()
	m.mu.Unlock()

	for _, fn := range fns {
		fn(&s)
	}
	return s, nil
}

// SignOut clears the active session and notifies watchers. Test hook
// for exercising the re-authentication path.
func (m *MemoryIdentity) SignOut() {
	m.mu.Lock()
	m.session = nil
	fns := m.watchersLocked()
	m.mu.Unlock()

	for _, fn := range fns {
		fn(nil)
	}
}

// OnAuthStateChanged implements Identity.OnAuthStateChanged.
func (m *MemoryIdentity) OnAuthStateChanged(fn func(*Session)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	current := m.session
	m.mu.Unlock()

	fn(current)

	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

func (m *MemoryIdentity) watchersLocked() []func(*Session) {
	fns := make([]func(*Session), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	return fns
}
