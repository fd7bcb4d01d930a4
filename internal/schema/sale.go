package schema

import (
	"fmt"
	"time"
)

// SaleItem is one line of a sale or layaway ticket.
type SaleItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Sale is a completed point-of-sale transaction.
//
// Sales are create-only: once recorded they are never edited in place,
// locally or remotely. They may be deleted locally (void/cleanup) but a
// delete is never echoed into an edit.
type Sale struct {
	LocalID   int64  `json:"-"`
	RemoteKey string `json:"remoteKey,omitempty"`

	TicketNumber  string     `json:"ticketNumber"`
	Items         []SaleItem `json:"items"`
	Total         float64    `json:"total"`
	PaymentMethod string     `json:"paymentMethod"`
	Date          time.Time  `json:"date"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks if the Sale has valid field values.
func (s *Sale) Validate() error {
	if s.TicketNumber == "" {
		return fmt.Errorf("ticketNumber is required")
	}
	if len(s.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	if s.Total < 0 {
		return fmt.Errorf("total must not be negative (got %v)", s.Total)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (s *Sale) SetDefaults() {
	now := time.Now()
	if s.Date.IsZero() {
		s.Date = now
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	if s.PaymentMethod == "" {
		s.PaymentMethod = "cash"
	}
}
