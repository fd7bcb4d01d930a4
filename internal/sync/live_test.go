package sync

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/graciadivina/tiendita/internal/hub"
	"github.com/graciadivina/tiendita/internal/remote"
	"github.com/graciadivina/tiendita/internal/schema"
	"github.com/graciadivina/tiendita/internal/store"
)

// TestEngine_StartOverWebSocket composes the engine over a real
// WebSocket client against a live hub, the way the CLI does: one
// Client serving as both the remote store and the identity provider.
// Start must return promptly even though the auth watcher establishes
// every collection subscription synchronously during sign-in.
func TestEngine_StartOverWebSocket(t *testing.T) {
	srv := hub.NewServer(&hub.Config{
		Addr:   "127.0.0.1:0",
		Logger: log.New(io.Discard, "", 0),
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("hub Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })

	st, err := store.Open(filepath.Join(t.TempDir(), "device.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	client := remote.NewClient("ws://"+srv.GetAddr()+"/ws", "tienda", log.New(io.Discard, "", 0))
	t.Cleanup(func() { _ = client.Close() })

	engine := New(st, client, client, &Config{
		SweepInterval:  time.Hour,
		NotifyDebounce: 5 * time.Millisecond,
		Logger:         log.New(io.Discard, "", 0),
	})

	started := make(chan error, 1)
	go func() { started <- engine.Start(context.Background()) }()
	select {
	case err := <-started:
		if err != nil {
			t.Fatalf("Start() failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() never returned; subscription setup is blocked on the connection")
	}
	t.Cleanup(engine.Stop)

	if !engine.IsAuthenticated() {
		t.Fatal("no session after start")
	}

	ctx := context.Background()

	// Outbound: a published product lands on the hub's tree under the
	// tenant root.
	p := &schema.Product{Name: "Rebozo", Price: 350}
	if _, err := st.AddProduct(ctx, p); err != nil {
		t.Fatalf("AddProduct() failed: %v", err)
	}
	if err := engine.UploadProduct(ctx, p); err != nil {
		t.Fatalf("UploadProduct() failed: %v", err)
	}
	snap, err := srv.Tree().GetAll(ctx, "tienda/productos")
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(snap) != 1 {
		t.Fatalf("hub tree has %d products, want 1", len(snap))
	}

	// Inbound: a record written to the tree arrives through the live
	// subscription and is merged locally.
	if err := srv.Tree().Set(ctx, "tienda/productos", "p9",
		schema.Product{Name: "Aretes", Price: 45, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	waitFor(t, "inbound product over the wire", func() bool {
		products, _ := st.GetAllProducts(ctx)
		return len(products) == 2
	})
}
