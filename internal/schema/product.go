package schema

import (
	"fmt"
	"time"
)

// Product is a catalog item offered for sale.
//
// LocalID is assigned by the local store on creation and is never
// transmitted to the remote tree; RemoteKey links the product to its
// remote counterpart once it has been uploaded or merged.
type Product struct {
	LocalID   int64  `json:"-"`
	RemoteKey string `json:"remoteKey,omitempty"`

	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	SKU      string  `json:"sku,omitempty"`
	Price    float64 `json:"price"`
	Stock    int     `json:"stock"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks if the Product has valid field values.
func (p *Product) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Price < 0 {
		return fmt.Errorf("price must not be negative (got %v)", p.Price)
	}
	if p.Stock < 0 {
		return fmt.Errorf("stock must not be negative (got %d)", p.Stock)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (p *Product) SetDefaults() {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
}

// Touch sets UpdatedAt to the current time.
// Call whenever any field is modified.
func (p *Product) Touch() {
	p.UpdatedAt = time.Now()
}
