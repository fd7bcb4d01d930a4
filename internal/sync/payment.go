package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/graciadivina/tiendita/internal/remote"
	"github.com/graciadivina/tiendita/internal/schema"
)

// AddLayawayPayment appends one payment to a layaway, locally first and
// then remotely under an atomic read-modify-write, so two devices
// recording payments against the same layaway at the same moment both
// land.
//
// The transaction appends to the payments array of the remote value
// current at commit time, not to this device's copy, then recomputes
// the aggregates. Payments another device slipped in meanwhile survive,
// and the resulting snapshot echo carries the union back here, where
// the later timestamp wins the merge.
//
// With no session the local append still stands and ErrSyncUnavailable
// is returned; the next sweep resends the record. Sustained contention
// surfaces as ErrTransactionAborted and the call is safe to repeat.
func (e *Engine) AddLayawayPayment(ctx context.Context, localID int64, payment schema.Payment) error {
	if payment.Amount <= 0 {
		return fmt.Errorf("payment amount must be positive (got %v)", payment.Amount)
	}
	if payment.Date.IsZero() {
		payment.Date = time.Now()
	}

	l, err := e.store.GetLayaway(ctx, localID)
	if err != nil {
		return fmt.Errorf("layaway %d not found: %w", localID, err)
	}
	if l.Status == schema.LayawayCompleted {
		return fmt.Errorf("layaway %d is already completed", localID)
	}

	l.Payments = append(l.Payments, payment)
	l.RecalcTotals()
	if l.PendingAmount == 0 {
		l.Status = schema.LayawayCompleted
	}
	l.UpdatedAt = time.Now()
	if err := e.store.UpdateLayaway(ctx, l); err != nil {
		return fmt.Errorf("failed to record payment locally: %w", err)
	}

	if err := e.requireSession(); err != nil {
		return err
	}

	key := l.RemoteKey
	assign := key == ""
	if assign {
		key = FallbackKey(schema.CollectionLayaways, l.LocalID)
	}

	err = remote.RunTransaction(ctx, e.remote, RemoteCollection(schema.CollectionLayaways), key,
		func(current json.RawMessage) (any, error) {
			if current == nil {
				// Never uploaded; publish the local copy, payment included.
				return l, nil
			}
			var r schema.Layaway
			if err := json.Unmarshal(current, &r); err != nil {
				return nil, fmt.Errorf("malformed remote layaway: %w", err)
			}
			r.RemoteKey = key
			r.Payments = append(r.Payments, payment)
			r.RecalcTotals()
			if r.PendingAmount == 0 {
				r.Status = schema.LayawayCompleted
			}
			r.UpdatedAt = time.Now()
			return &r, nil
		})
	if err != nil {
		if errors.Is(err, remote.ErrRevisionMismatch) {
			return fmt.Errorf("payment upload for layaway %d: %w", localID, ErrTransactionAborted)
		}
		return fmt.Errorf("payment upload for layaway %d failed: %w", localID, err)
	}

	if assign {
		l.RemoteKey = key
		if err := e.store.UpdateLayaway(ctx, l); err != nil {
			return fmt.Errorf("failed to persist remote key for layaway %d: %w", l.LocalID, err)
		}
	}
	return nil
}

// CreateSale records a completed sale locally and publishes it under a
// create-if-absent transaction: if the key already holds a value the
// write is dropped rather than overwriting, since sales are never
// mutated once recorded. Returns the assigned local id.
func (e *Engine) CreateSale(ctx context.Context, s *schema.Sale) (int64, error) {
	id, err := e.store.AddSale(ctx, s)
	if err != nil {
		return 0, err
	}

	if err := e.requireSession(); err != nil {
		return id, err
	}

	key := s.RemoteKey
	if key == "" {
		key = FallbackKey(schema.CollectionSales, id)
	}

	err = remote.RunTransaction(ctx, e.remote, RemoteCollection(schema.CollectionSales), key,
		func(current json.RawMessage) (any, error) {
			if current != nil {
				return nil, remote.ErrAborted
			}
			return s, nil
		})
	if err != nil {
		if errors.Is(err, remote.ErrAborted) {
			// Already present remotely; the local insert stands.
			e.logger.Printf("Sale %s already published, skipping upload", key)
			return id, nil
		}
		if errors.Is(err, remote.ErrRevisionMismatch) {
			return id, fmt.Errorf("sale upload %s: %w", key, ErrTransactionAborted)
		}
		return id, fmt.Errorf("sale upload %s failed: %w", key, err)
	}
	return id, nil
}
