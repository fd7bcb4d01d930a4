package sync

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/graciadivina/tiendita/internal/remote"
	"github.com/graciadivina/tiendita/internal/store"
)

// device is one simulated till: a private local store plus an engine
// wired to the shared in-memory tree.
type device struct {
	engine *Engine
	store  *store.Store
	auth   *remote.MemoryIdentity
}

// newDevice opens a fresh local store against the shared tree and
// starts its engine. The in-memory tree delivers snapshots
// synchronously, so most effects are visible as soon as a write
// returns.
func newDevice(t *testing.T, tree *remote.Memory) *device {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "device.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	auth := remote.NewMemoryIdentity()
	engine := New(st, tree, auth, &Config{
		SweepInterval:  time.Hour, // manual sweeps only
		NotifyDebounce: 5 * time.Millisecond,
		Logger:         log.New(io.Discard, "", 0),
	})
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(engine.Stop)

	return &device{engine: engine, store: st, auth: auth}
}

// offlineDevice builds an engine that is never started, for exercising
// unauthenticated paths.
func offlineDevice(t *testing.T, tree *remote.Memory) *device {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "device.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	engine := New(st, tree, remote.NewMemoryIdentity(), &Config{
		SweepInterval:  time.Hour,
		NotifyDebounce: 5 * time.Millisecond,
		Logger:         log.New(io.Discard, "", 0),
	})
	return &device{engine: engine, store: st}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
