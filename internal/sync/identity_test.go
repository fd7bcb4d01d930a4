package sync

import (
	"testing"
	"time"

	"github.com/graciadivina/tiendita/internal/schema"
)

func TestMatchProduct(t *testing.T) {
	tests := []struct {
		name   string
		local  schema.Product
		remote schema.Product
		want   bool
	}{
		{"sku match", schema.Product{SKU: "A-1"}, schema.Product{SKU: "A-1", Name: "otro"}, true},
		{"sku mismatch beats name", schema.Product{SKU: "A-1", Name: "Blusa", Price: 10}, schema.Product{SKU: "B-2", Name: "Blusa", Price: 10}, false},
		{"name+price fallback", schema.Product{Name: "Blusa", Price: 10}, schema.Product{Name: "Blusa", Price: 10}, true},
		{"price differs", schema.Product{Name: "Blusa", Price: 10}, schema.Product{Name: "Blusa", Price: 12}, false},
		{"one-sided sku falls back", schema.Product{SKU: "A-1", Name: "Blusa", Price: 10}, schema.Product{Name: "Blusa", Price: 10}, true},
	}
	for _, tt := range tests {
		if got := MatchProduct(&tt.local, &tt.remote); got != tt.want {
			t.Errorf("%s: MatchProduct() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMatchLayaway(t *testing.T) {
	day := time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)

	base := schema.Layaway{CustomerName: "María López", CustomerPhone: "555-123-4567", Date: day}

	same := schema.Layaway{CustomerName: "  maría lópez ", CustomerPhone: "5551234567", Date: day.Add(6 * time.Hour)}
	if !MatchLayaway(&base, &same) {
		t.Error("normalized name+phone on the same day should match")
	}

	otherDay := same
	otherDay.Date = day.AddDate(0, 0, 1)
	if MatchLayaway(&base, &otherDay) {
		t.Error("different calendar day should not match")
	}

	noPhone := schema.Layaway{CustomerName: "María López", Date: day}
	if MatchLayaway(&base, &noPhone) || MatchLayaway(&noPhone, &base) {
		t.Error("a missing phone on either side should never match")
	}
}

func TestMatchSaleAndOwner(t *testing.T) {
	a := schema.Sale{TicketNumber: "T-1"}
	b := schema.Sale{TicketNumber: "T-1"}
	if !MatchSale(&a, &b) {
		t.Error("same ticket should match")
	}
	empty := schema.Sale{}
	if MatchSale(&empty, &empty) {
		t.Error("empty tickets should not match")
	}

	o1 := schema.Owner{Name: "Carmen"}
	o2 := schema.Owner{Name: "Carmen"}
	if !MatchOwner(&o1, &o2) {
		t.Error("same owner name should match")
	}
}

func TestNormalizePhone(t *testing.T) {
	if got := schema.NormalizePhone("+52 (555) 123-4567"); got != "+525551234567" {
		t.Errorf("NormalizePhone() = %q", got)
	}
	if got := schema.NormalizePhone("55+51"); got != "5551" {
		t.Errorf("interior plus kept: %q", got)
	}
}

func TestDedupeLayaways(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	byKey1 := &schema.Layaway{RemoteKey: "k1", CustomerName: "first"}
	byKey1Dup := &schema.Layaway{RemoteKey: "k1", CustomerName: "second copy"}
	natural := &schema.Layaway{CustomerName: "María", CustomerPhone: "5551234567", CreatedAt: created}
	naturalDup := &schema.Layaway{CustomerName: " maría", CustomerPhone: "555-123-4567", CreatedAt: created}
	distinct := &schema.Layaway{CustomerName: "María", CustomerPhone: "5551234567", CreatedAt: created.Add(time.Minute)}

	out := DedupeLayaways([]*schema.Layaway{byKey1, byKey1Dup, natural, naturalDup, distinct})
	if len(out) != 3 {
		t.Fatalf("DedupeLayaways() kept %d, want 3", len(out))
	}
	if out[0] != byKey1 {
		t.Error("first-seen entry for shared key not kept")
	}
	if out[1] != natural {
		t.Error("first-seen natural-key entry not kept")
	}
}

func TestFallbackKey(t *testing.T) {
	if got := FallbackKey(schema.CollectionProducts, 7); got != "local_7" {
		t.Errorf("FallbackKey(products) = %q", got)
	}
	if got := FallbackKey(schema.CollectionOwners, 7); got != "owner_7" {
		t.Errorf("FallbackKey(owners) = %q", got)
	}
}

func TestCollectionMapping(t *testing.T) {
	pairs := map[string]string{
		"products": "productos",
		"sales":    "ventas",
		"layaways": "apartados",
		"owners":   "duenas",
		"settings": "config",
	}
	for local, want := range pairs {
		if got := RemoteCollection(local); got != want {
			t.Errorf("RemoteCollection(%s) = %s, want %s", local, got, want)
		}
		back, err := LocalCollection(want)
		if err != nil || back != local {
			t.Errorf("LocalCollection(%s) = %s, %v", want, back, err)
		}
	}

	if got := RemoteCollection("custom"); got != "custom" {
		t.Errorf("unknown local collection should pass through, got %s", got)
	}
	if _, err := LocalCollection("nope"); err == nil {
		t.Error("unknown remote collection should error")
	}
}
