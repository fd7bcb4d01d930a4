package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/graciadivina/tiendita/internal/remote"
)

// startHub brings up a server on an ephemeral port.
func startHub(t *testing.T) *Server {
	t.Helper()

	s := NewServer(&Config{
		Addr:   "127.0.0.1:0",
		Logger: log.New(io.Discard, "", 0),
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

// dialHub connects a client under the given tenant root and signs in.
func dialHub(t *testing.T, s *Server, root string) *remote.Client {
	t.Helper()

	c := remote.NewClient("ws://"+s.GetAddr()+"/ws", root, log.New(io.Discard, "", 0))
	t.Cleanup(func() { _ = c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.SignInAnonymously(ctx); err != nil {
		t.Fatalf("SignInAnonymously() failed: %v", err)
	}
	return c
}

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

func TestHub_HelloIssuesUID(t *testing.T) {
	s := startHub(t)
	c := dialHub(t, s, "")

	ctx := context.Background()
	session, err := c.SignInAnonymously(ctx)
	if err != nil {
		t.Fatalf("SignInAnonymously() failed: %v", err)
	}
	if session.UID == "" {
		t.Error("hub issued empty uid")
	}

	// A second connection gets its own uid.
	c2 := dialHub(t, s, "")
	session2, _ := c2.SignInAnonymously(ctx)
	if session2.UID == session.UID {
		t.Error("two connections share a uid")
	}
}

func TestHub_SetGetRemove(t *testing.T) {
	s := startHub(t)
	c := dialHub(t, s, "")
	ctx := context.Background()

	record := map[string]any{"name": "Blusa", "price": 100}
	if err := c.Set(ctx, "productos", "p1", record); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	raw, err := c.Get(ctx, "productos", "p1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("bad JSON from hub: %v", err)
	}
	if got["name"] != "Blusa" {
		t.Errorf("value = %v, want the stored record", got)
	}

	snap, err := c.GetAll(ctx, "productos")
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(snap) != 1 {
		t.Errorf("snapshot has %d records, want 1", len(snap))
	}

	if err := c.Remove(ctx, "productos", "p1"); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if _, err := c.Get(ctx, "productos", "p1"); !errors.Is(err, remote.ErrKeyNotFound) {
		t.Errorf("Get() after remove = %v, want ErrKeyNotFound", err)
	}
}

func TestHub_GetMissing(t *testing.T) {
	s := startHub(t)
	c := dialHub(t, s, "")

	if _, err := c.Get(context.Background(), "productos", "nope"); !errors.Is(err, remote.ErrKeyNotFound) {
		t.Errorf("Get() missing = %v, want ErrKeyNotFound", err)
	}
}

func TestHub_CompareAndSet(t *testing.T) {
	s := startHub(t)
	c := dialHub(t, s, "")
	ctx := context.Background()

	// Create-if-absent at rev 0.
	rev, err := c.CompareAndSet(ctx, "apartados", "L1", map[string]any{"total": 500}, 0)
	if err != nil {
		t.Fatalf("CompareAndSet() create failed: %v", err)
	}
	if rev == 0 {
		t.Error("no revision assigned on create")
	}

	// Stale revision is refused and mapped back to the sentinel.
	if _, err := c.CompareAndSet(ctx, "apartados", "L1", map[string]any{"total": 1}, rev+99); !errors.Is(err, remote.ErrRevisionMismatch) {
		t.Errorf("stale CAS = %v, want ErrRevisionMismatch", err)
	}

	// Current revision wins.
	if _, err := c.CompareAndSet(ctx, "apartados", "L1", map[string]any{"total": 600}, rev); err != nil {
		t.Fatalf("CompareAndSet() at current rev failed: %v", err)
	}

	_, rev2, err := c.GetRev(ctx, "apartados", "L1")
	if err != nil {
		t.Fatalf("GetRev() failed: %v", err)
	}
	if rev2 <= rev {
		t.Errorf("revision did not advance: %d -> %d", rev, rev2)
	}
}

func TestHub_SubscribePushesSnapshots(t *testing.T) {
	s := startHub(t)
	writer := dialHub(t, s, "")
	reader := dialHub(t, s, "")
	ctx := context.Background()

	var mu sync.Mutex
	var last remote.Snapshot
	var deliveries int

	cancel, err := reader.Subscribe(ctx, "productos", func(snap remote.Snapshot) {
		mu.Lock()
		last = snap
		deliveries++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	defer cancel()

	// Initial snapshot arrives even while the collection is empty.
	waitFor(t, "initial snapshot", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deliveries >= 1
	})

	if err := writer.Set(ctx, "productos", "p1", map[string]any{"name": "Rebozo"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	waitFor(t, "change snapshot", func() bool {
		mu.Lock()
		defer mu.Unlock()
		_, ok := last["p1"]
		return ok
	})

	// After cancel the callback goes quiet.
	cancel()
	mu.Lock()
	before := deliveries
	mu.Unlock()
	_ = writer.Set(ctx, "productos", "p2", map[string]any{"name": "Falda"})
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	after := deliveries
	mu.Unlock()
	if after != before {
		t.Errorf("snapshot delivered after cancel: %d -> %d", before, after)
	}
}

func TestHub_TenantRootsIsolated(t *testing.T) {
	s := startHub(t)
	a := dialHub(t, s, "tienda-a")
	b := dialHub(t, s, "tienda-b")
	ctx := context.Background()

	if err := a.Set(ctx, "productos", "p1", map[string]any{"name": "Blusa"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	snap, err := b.GetAll(ctx, "productos")
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(snap) != 0 {
		t.Errorf("tenant b sees %d of tenant a's records", len(snap))
	}

	// The record lives under the scoped name on the shared tree.
	scoped, _ := s.Tree().GetAll(ctx, "tienda-a/productos")
	if len(scoped) != 1 {
		t.Errorf("scoped collection has %d records, want 1", len(scoped))
	}
}

func TestHub_ClientCount(t *testing.T) {
	s := startHub(t)

	if n := s.ClientCount(); n != 0 {
		t.Fatalf("fresh hub reports %d clients", n)
	}

	c := dialHub(t, s, "")
	waitFor(t, "client registered", func() bool { return s.ClientCount() == 1 })

	_ = c.Close()
	waitFor(t, "client removed", func() bool { return s.ClientCount() == 0 })
}

func TestHub_HealthEndpoint(t *testing.T) {
	s := startHub(t)

	resp, err := http.Get("http://" + s.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("bad health payload: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}
