package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Set(ctx, "productos", "local_1", map[string]any{"name": "Blusa"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	got, err := m.Get(ctx, "productos", "local_1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	var v map[string]any
	if err := json.Unmarshal(got, &v); err != nil {
		t.Fatalf("Get() returned bad JSON: %v", err)
	}
	if v["name"] != "Blusa" {
		t.Errorf("name = %v, want Blusa", v["name"])
	}

	if _, err := m.Get(ctx, "productos", "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get(missing) = %v, want ErrKeyNotFound", err)
	}
}

func TestMemory_GetRev_MissingIsZero(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	value, rev, err := m.GetRev(ctx, "ventas", "nope")
	if err != nil {
		t.Fatalf("GetRev() failed: %v", err)
	}
	if value != nil || rev != 0 {
		t.Errorf("GetRev(missing) = (%v, %d), want (nil, 0)", value, rev)
	}
}

func TestMemory_Remove_Idempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.Set(ctx, "duenas", "owner_1", "x")
	if err := m.Remove(ctx, "duenas", "owner_1"); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if err := m.Remove(ctx, "duenas", "owner_1"); err != nil {
		t.Errorf("second Remove() = %v, want nil", err)
	}
}

func TestMemory_CompareAndSet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	// rev 0 = create-if-absent
	rev, err := m.CompareAndSet(ctx, "apartados", "local_1", "a", 0)
	if err != nil {
		t.Fatalf("CompareAndSet(create) failed: %v", err)
	}
	if rev != 1 {
		t.Errorf("rev = %d, want 1", rev)
	}

	// Creating again must conflict.
	if _, err := m.CompareAndSet(ctx, "apartados", "local_1", "b", 0); !errors.Is(err, ErrRevisionMismatch) {
		t.Errorf("CompareAndSet(create twice) = %v, want ErrRevisionMismatch", err)
	}

	// Stale rev must conflict; current rev must win.
	if _, err := m.CompareAndSet(ctx, "apartados", "local_1", "b", 99); !errors.Is(err, ErrRevisionMismatch) {
		t.Errorf("CompareAndSet(stale) = %v, want ErrRevisionMismatch", err)
	}
	if _, err := m.CompareAndSet(ctx, "apartados", "local_1", "b", rev); err != nil {
		t.Errorf("CompareAndSet(current) failed: %v", err)
	}
}

func TestMemory_Subscribe(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Set(ctx, "productos", "k1", "v1")

	var snaps []Snapshot
	cancel, err := m.Subscribe(ctx, "productos", func(s Snapshot) {
		snaps = append(snaps, s)
	})
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	if len(snaps) != 1 || len(snaps[0]) != 1 {
		t.Fatalf("initial snapshot not delivered: %v", snaps)
	}

	_ = m.Set(ctx, "productos", "k2", "v2")
	if len(snaps) != 2 || len(snaps[1]) != 2 {
		t.Fatalf("change snapshot not delivered: %v", snaps)
	}

	cancel()
	_ = m.Set(ctx, "productos", "k3", "v3")
	if len(snaps) != 2 {
		t.Error("snapshot delivered after cancel")
	}
}

func TestRunTransaction_AppendsConcurrently(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := RunTransaction(ctx, m, "apartados", "local_1", func(current json.RawMessage) (any, error) {
				var list []int
				if current != nil {
					if err := json.Unmarshal(current, &list); err != nil {
						return nil, err
					}
				}
				return append(list, n), nil
			})
			if err != nil {
				t.Errorf("RunTransaction() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := m.Get(ctx, "apartados", "local_1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	var list []int
	if err := json.Unmarshal(got, &list); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(list) != writers {
		t.Errorf("appended %d entries, want %d (lost updates)", len(list), writers)
	}
}

func TestRunTransaction_AbortPassesThrough(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Set(ctx, "ventas", "local_1", "existing")

	err := RunTransaction(ctx, m, "ventas", "local_1", func(current json.RawMessage) (any, error) {
		if current != nil {
			return nil, ErrAborted
		}
		return "new", nil
	})
	if !errors.Is(err, ErrAborted) {
		t.Errorf("RunTransaction() = %v, want ErrAborted", err)
	}

	got, _ := m.Get(ctx, "ventas", "local_1")
	if string(got) != `"existing"` {
		t.Errorf("aborted transaction wrote: %s", got)
	}
}

func TestMemoryIdentity_Lifecycle(t *testing.T) {
	id := NewMemoryIdentity()

	var events []string
	cancel := id.OnAuthStateChanged(func(s *Session) {
		if s == nil {
			events = append(events, "out")
		} else {
			events = append(events, "in:"+s.UID)
		}
	})
	defer cancel()

	if len(events) != 1 || events[0] != "out" {
		t.Fatalf("initial state = %v, want immediate nil delivery", events)
	}

	s, err := id.SignInAnonymously(context.Background())
	if err != nil {
		t.Fatalf("SignInAnonymously() failed: %v", err)
	}
	if s.UID == "" {
		t.Fatal("empty uid")
	}
	if len(events) != 2 || events[1] != fmt.Sprintf("in:%s", s.UID) {
		t.Errorf("sign-in not observed: %v", events)
	}

	id.SignOut()
	if len(events) != 3 || events[2] != "out" {
		t.Errorf("sign-out not observed: %v", events)
	}
}
