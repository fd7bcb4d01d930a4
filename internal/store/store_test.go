package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/graciadivina/tiendita/internal/schema"
)

// testStore returns an open store with schema initialized, cleaned up
// with the test.
func testStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return st
}

func TestInitSchema_Idempotent(t *testing.T) {
	st := testStore(t)
	if err := st.InitSchema(context.Background()); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

func TestProduct_CRUD(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	p := &schema.Product{Name: "Blusa roja", Category: "ropa", Price: 250, Stock: 3}
	id, err := st.AddProduct(ctx, p)
	if err != nil {
		t.Fatalf("AddProduct() failed: %v", err)
	}
	if id == 0 {
		t.Fatal("AddProduct() returned id 0")
	}

	got, err := st.GetProduct(ctx, id)
	if err != nil {
		t.Fatalf("GetProduct() failed: %v", err)
	}
	if got.Name != "Blusa roja" || got.Price != 250 || got.Stock != 3 {
		t.Errorf("GetProduct() = %+v, want original fields", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not defaulted on insert")
	}

	got.Price = 199
	got.RemoteKey = "local_1"
	if err := st.UpdateProduct(ctx, got); err != nil {
		t.Fatalf("UpdateProduct() failed: %v", err)
	}
	again, err := st.GetProduct(ctx, id)
	if err != nil {
		t.Fatalf("GetProduct() after update failed: %v", err)
	}
	if again.Price != 199 || again.RemoteKey != "local_1" {
		t.Errorf("update not persisted: %+v", again)
	}

	if err := st.DeleteProduct(ctx, id); err != nil {
		t.Fatalf("DeleteProduct() failed: %v", err)
	}
	if _, err := st.GetProduct(ctx, id); err != sql.ErrNoRows {
		t.Errorf("GetProduct() after delete = %v, want sql.ErrNoRows", err)
	}
}

func TestAddProduct_Invalid(t *testing.T) {
	st := testStore(t)

	if _, err := st.AddProduct(context.Background(), &schema.Product{Price: 10}); err == nil {
		t.Error("AddProduct() with empty name should fail")
	}
	if _, err := st.AddProduct(context.Background(), &schema.Product{Name: "x", Price: -1}); err == nil {
		t.Error("AddProduct() with negative price should fail")
	}
}

func TestSale_CreateOnly(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	s := &schema.Sale{
		TicketNumber: "T-0001",
		Items:        []schema.SaleItem{{Name: "Falda", Price: 120, Quantity: 1}},
		Total:        120,
	}
	id, err := st.AddSale(ctx, s)
	if err != nil {
		t.Fatalf("AddSale() failed: %v", err)
	}

	sales, err := st.GetAllSales(ctx)
	if err != nil {
		t.Fatalf("GetAllSales() failed: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("GetAllSales() = %d sales, want 1", len(sales))
	}
	if sales[0].PaymentMethod != "cash" {
		t.Errorf("payment method = %q, want default cash", sales[0].PaymentMethod)
	}
	if len(sales[0].Items) != 1 || sales[0].Items[0].Name != "Falda" {
		t.Errorf("items not round-tripped: %+v", sales[0].Items)
	}

	if err := st.DeleteSale(ctx, id); err != nil {
		t.Fatalf("DeleteSale() failed: %v", err)
	}
}

func TestLayaway_TotalsRecomputedOnWrite(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	l := &schema.Layaway{
		CustomerName: "María López",
		Total:        500,
		// Deliberately wrong aggregates; the store must not trust them.
		TotalPaid:     400,
		PendingAmount: 0,
		Payments:      []schema.Payment{{Amount: 100, PaymentMethod: "cash", Date: time.Now()}},
	}
	id, err := st.AddLayaway(ctx, l)
	if err != nil {
		t.Fatalf("AddLayaway() failed: %v", err)
	}

	got, err := st.GetLayaway(ctx, id)
	if err != nil {
		t.Fatalf("GetLayaway() failed: %v", err)
	}
	if got.TotalPaid != 100 || got.PendingAmount != 400 {
		t.Errorf("aggregates = paid %v pending %v, want 100/400", got.TotalPaid, got.PendingAmount)
	}

	got.Payments = append(got.Payments, schema.Payment{Amount: 600, Date: time.Now()})
	got.TotalPaid = 0 // stale on purpose
	if err := st.UpdateLayaway(ctx, got); err != nil {
		t.Fatalf("UpdateLayaway() failed: %v", err)
	}
	again, _ := st.GetLayaway(ctx, id)
	if again.TotalPaid != 700 || again.PendingAmount != 0 {
		t.Errorf("aggregates after overpay = paid %v pending %v, want 700/0 (clamped)", again.TotalPaid, again.PendingAmount)
	}
}

func TestDeleteLayaway_CompletedRefused(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	l := &schema.Layaway{CustomerName: "Ana", Total: 100, Status: schema.LayawayCompleted}
	id, err := st.AddLayaway(ctx, l)
	if err != nil {
		t.Fatalf("AddLayaway() failed: %v", err)
	}

	if err := st.DeleteLayaway(ctx, id); err == nil {
		t.Fatal("DeleteLayaway() on completed layaway should fail")
	}

	// Absent id is idempotent.
	if err := st.DeleteLayaway(ctx, 9999); err != nil {
		t.Errorf("DeleteLayaway() on absent id = %v, want nil", err)
	}

	// Pending deletes fine.
	p := &schema.Layaway{CustomerName: "Rosa", Total: 100}
	pid, _ := st.AddLayaway(ctx, p)
	if err := st.DeleteLayaway(ctx, pid); err != nil {
		t.Errorf("DeleteLayaway() on pending layaway failed: %v", err)
	}
}

func TestSetting_Upsert(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	s := &schema.Setting{Key: "nombreTienda", Value: []byte(`"Gracia Divina"`)}
	if err := st.PutSetting(ctx, s); err != nil {
		t.Fatalf("PutSetting() failed: %v", err)
	}

	s2 := &schema.Setting{Key: "nombreTienda", Value: []byte(`"Otra"`), UpdatedAt: time.Now()}
	if err := st.PutSetting(ctx, s2); err != nil {
		t.Fatalf("PutSetting() upsert failed: %v", err)
	}

	got, err := st.GetSetting(ctx, "nombreTienda")
	if err != nil {
		t.Fatalf("GetSetting() failed: %v", err)
	}
	if string(got.Value) != `"Otra"` {
		t.Errorf("value = %s, want \"Otra\"", got.Value)
	}

	all, err := st.GetAllSettings(ctx)
	if err != nil {
		t.Fatalf("GetAllSettings() failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("GetAllSettings() = %d settings, want 1 (upsert, not insert)", len(all))
	}
}

func TestCountRecords(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		o := &schema.Owner{Name: "Dueña " + string(rune('A'+i))}
		if _, err := st.AddOwner(ctx, o); err != nil {
			t.Fatalf("AddOwner() failed: %v", err)
		}
	}

	n, err := st.CountRecords(ctx, schema.CollectionOwners)
	if err != nil {
		t.Fatalf("CountRecords() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("CountRecords(owners) = %d, want 3", n)
	}

	if _, err := st.CountRecords(ctx, "nope"); err == nil {
		t.Error("CountRecords() with unknown collection should fail")
	}
}
