package schema

import (
	"fmt"
	"strings"
	"time"
)

// Layaway status values.
const (
	LayawayPending   = "pending"
	LayawayCompleted = "completed"
)

// Payment is one partial payment against a layaway.
type Payment struct {
	Amount        float64   `json:"amount"`
	PaymentMethod string    `json:"paymentMethod"`
	Date          time.Time `json:"date"`
}

// Layaway is a partial-payment reservation of goods (apartado). It is
// converted to a completed state once the pending amount reaches zero.
//
// TotalPaid and PendingAmount are derived from the Payments array and
// must be recomputed with RecalcTotals after every merge; a transmitted
// aggregate is never trusted.
type Layaway struct {
	LocalID   int64  `json:"-"`
	RemoteKey string `json:"remoteKey,omitempty"`

	CustomerName  string     `json:"customerName"`
	CustomerPhone string     `json:"customerPhone,omitempty"`
	Items         []SaleItem `json:"items"`
	Total         float64    `json:"total"`
	TotalPaid     float64    `json:"totalPaid"`
	PendingAmount float64    `json:"pendingAmount"`
	Status        string     `json:"status"`
	Date          time.Time  `json:"date"`
	Payments      []Payment  `json:"payments"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks if the Layaway has valid field values.
func (l *Layaway) Validate() error {
	if l.CustomerName == "" {
		return fmt.Errorf("customerName is required")
	}
	if l.Total < 0 {
		return fmt.Errorf("total must not be negative (got %v)", l.Total)
	}
	if l.Status != LayawayPending && l.Status != LayawayCompleted {
		return fmt.Errorf("status must be %q or %q (got %q)", LayawayPending, LayawayCompleted, l.Status)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (l *Layaway) SetDefaults() {
	now := time.Now()
	if l.Status == "" {
		l.Status = LayawayPending
	}
	if l.Date.IsZero() {
		l.Date = now
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = now
	}
	if l.Payments == nil {
		l.Payments = []Payment{}
	}
	l.RecalcTotals()
}

// RecalcTotals recomputes TotalPaid and PendingAmount from the Payments
// array. PendingAmount is clamped at zero.
func (l *Layaway) RecalcTotals() {
	var paid float64
	for _, p := range l.Payments {
		if p.Amount > 0 {
			paid += p.Amount
		}
	}
	l.TotalPaid = paid
	pending := l.Total - paid
	if pending < 0 {
		pending = 0
	}
	l.PendingAmount = pending
}

// NormalizeName lowercases and trims a customer name for identity
// comparison.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizePhone strips everything but digits and a leading + from a
// phone number for identity comparison.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SameDay reports whether two timestamps fall on the same calendar day
// in local time.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
