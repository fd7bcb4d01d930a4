package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/graciadivina/tiendita/internal/schema"
	"github.com/graciadivina/tiendita/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "shop.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return st
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := testStore(t)

	product := &schema.Product{Name: "Blusa", Price: 100, Stock: 3, RemoteKey: "p1", UpdatedAt: time.Now()}
	if _, err := src.AddProduct(ctx, product); err != nil {
		t.Fatalf("AddProduct() failed: %v", err)
	}
	if _, err := src.AddSale(ctx, &schema.Sale{
		TicketNumber: "T-1",
		Items:        []schema.SaleItem{{Name: "Blusa", Price: 100, Quantity: 1}},
		Total:        100,
		RemoteKey:    "s1",
	}); err != nil {
		t.Fatalf("AddSale() failed: %v", err)
	}
	if _, err := src.AddLayaway(ctx, &schema.Layaway{
		CustomerName:  "María",
		CustomerPhone: "555",
		Total:         500,
		Payments:      []schema.Payment{{Amount: 200, Date: time.Now()}},
		RemoteKey:     "L1",
	}); err != nil {
		t.Fatalf("AddLayaway() failed: %v", err)
	}
	if _, err := src.AddOwner(ctx, &schema.Owner{Name: "Carmen", RemoteKey: "owner_1"}); err != nil {
		t.Fatalf("AddOwner() failed: %v", err)
	}
	if err := src.PutSetting(ctx, &schema.Setting{Key: "moneda", Value: []byte(`"MXN"`)}); err != nil {
		t.Fatalf("PutSetting() failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "dump", "shop.jsonl")
	exported, err := Export(ctx, src, path)
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if exported.Total() != 5 {
		t.Fatalf("exported %d records, want 5", exported.Total())
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after export")
	}

	dst := testStore(t)
	imported, err := Import(ctx, dst, path)
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if imported.Total() != 5 {
		t.Fatalf("imported %d records, want 5", imported.Total())
	}
	if len(imported.Errors) != 0 {
		t.Fatalf("unexpected import errors: %v", imported.Errors)
	}

	// Remote identities survive the round trip so the next sweep
	// republishes under the original keys.
	products, _ := dst.GetAllProducts(ctx)
	if len(products) != 1 || products[0].RemoteKey != "p1" {
		t.Errorf("product identity lost: %+v", products)
	}
	layaways, _ := dst.GetAllLayaways(ctx)
	if len(layaways) != 1 || layaways[0].RemoteKey != "L1" {
		t.Fatalf("layaway identity lost: %+v", layaways)
	}
	if layaways[0].TotalPaid != 200 || layaways[0].PendingAmount != 300 {
		t.Errorf("layaway aggregates = paid %v pending %v, want 200/300",
			layaways[0].TotalPaid, layaways[0].PendingAmount)
	}
	setting, err := dst.GetSetting(ctx, "moneda")
	if err != nil {
		t.Fatalf("GetSetting() failed: %v", err)
	}
	if string(setting.Value) != `"MXN"` {
		t.Errorf("setting value = %s, want \"MXN\"", setting.Value)
	}
}

func TestImport_BadLinesSkipped(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "shop.jsonl")
	content := `{"collection":"products","key":"p1","record":{"name":"Blusa","price":100}}
{"collection":"fantasmas","key":"x","record":{}}
{"collection":"products","key":"p2","record":{"name":"","price":-1}}
{"collection":"products","key":"p3","record":{"name":"Falda","price":200}}
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	st := testStore(t)
	result, err := Import(ctx, st, path)
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}

	if result.Products != 2 {
		t.Errorf("imported %d products, want 2", result.Products)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("recorded %d errors, want 2: %v", len(result.Errors), result.Errors)
	}

	products, _ := st.GetAllProducts(ctx)
	if len(products) != 2 {
		t.Errorf("store holds %d products, want the 2 good ones", len(products))
	}
}

func TestImport_InvalidJSONHalts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.jsonl")
	if err := os.WriteFile(path, []byte("{not json\n"), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	st := testStore(t)
	if _, err := Import(context.Background(), st, path); err == nil {
		t.Error("invalid JSON should fail the import")
	}
}

func TestImport_MissingFile(t *testing.T) {
	st := testStore(t)
	if _, err := Import(context.Background(), st, filepath.Join(t.TempDir(), "nope.jsonl")); err == nil {
		t.Error("missing file should fail")
	}
}
