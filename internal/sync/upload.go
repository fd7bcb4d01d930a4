package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/graciadivina/tiendita/internal/schema"
)

// push writes one record to the remote tree. The local store is
// already the durable copy by the time push runs, so a failure is
// recorded for retry and reported, never fatal to the caller's flow.
func (e *Engine) push(ctx context.Context, collection, key string, value any, retry pendingWrite) error {
	if err := e.requireSession(); err != nil {
		e.pending.Add(retry)
		return err
	}
	if err := e.remote.Set(ctx, RemoteCollection(collection), key, value); err != nil {
		e.pending.Add(retry)
		return fmt.Errorf("upload %s/%s failed: %w", collection, key, err)
	}
	return nil
}

// UploadProduct publishes one product. A product without a remote key
// is written under its deterministic fallback key, which then becomes
// its remote key and is persisted locally.
func (e *Engine) UploadProduct(ctx context.Context, p *schema.Product) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	key := p.RemoteKey
	assign := key == ""
	if assign {
		key = FallbackKey(schema.CollectionProducts, p.LocalID)
	}

	retry := pendingWrite{Collection: schema.CollectionProducts, LocalID: p.LocalID}
	if err := e.push(ctx, schema.CollectionProducts, key, p, retry); err != nil {
		return err
	}
	if assign {
		p.RemoteKey = key
		if err := e.store.UpdateProduct(ctx, p); err != nil {
			return fmt.Errorf("failed to persist remote key for product %d: %w", p.LocalID, err)
		}
	}
	return nil
}

// UploadSale publishes one sale. Sales are create-only, so an assigned
// fallback key is never written back to the local row; the key is
// deterministic and every re-upload lands on the same one.
func (e *Engine) UploadSale(ctx context.Context, s *schema.Sale) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	key := s.RemoteKey
	if key == "" {
		key = FallbackKey(schema.CollectionSales, s.LocalID)
	}
	retry := pendingWrite{Collection: schema.CollectionSales, LocalID: s.LocalID}
	return e.push(ctx, schema.CollectionSales, key, s, retry)
}

// UploadLayaway publishes one layaway. Totals are recomputed from the
// payments array first; a stored aggregate is never transmitted as-is.
func (e *Engine) UploadLayaway(ctx context.Context, l *schema.Layaway) error {
	l.RecalcTotals()
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = time.Now()
	}
	key := l.RemoteKey
	assign := key == ""
	if assign {
		key = FallbackKey(schema.CollectionLayaways, l.LocalID)
	}

	retry := pendingWrite{Collection: schema.CollectionLayaways, LocalID: l.LocalID}
	if err := e.push(ctx, schema.CollectionLayaways, key, l, retry); err != nil {
		return err
	}
	if assign {
		l.RemoteKey = key
		if err := e.store.UpdateLayaway(ctx, l); err != nil {
			return fmt.Errorf("failed to persist remote key for layaway %d: %w", l.LocalID, err)
		}
	}
	return nil
}

// UploadOwner publishes one owner.
func (e *Engine) UploadOwner(ctx context.Context, o *schema.Owner) error {
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now()
	}
	key := o.RemoteKey
	assign := key == ""
	if assign {
		key = FallbackKey(schema.CollectionOwners, o.LocalID)
	}

	retry := pendingWrite{Collection: schema.CollectionOwners, LocalID: o.LocalID}
	if err := e.push(ctx, schema.CollectionOwners, key, o, retry); err != nil {
		return err
	}
	if assign {
		o.RemoteKey = key
		if err := e.store.UpdateOwner(ctx, o); err != nil {
			return fmt.Errorf("failed to persist remote key for owner %d: %w", o.LocalID, err)
		}
	}
	return nil
}

// UploadSetting publishes one setting; the setting key addresses the
// record remotely as well.
func (e *Engine) UploadSetting(ctx context.Context, st *schema.Setting) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	retry := pendingWrite{Collection: schema.CollectionSettings, SettingKey: st.Key}
	return e.push(ctx, schema.CollectionSettings, st.Key, st, retry)
}

// RemoveRemote deletes a record's remote counterpart after it has been
// deleted locally. remoteKey may be empty for a record that was never
// linked; the deterministic fallback key is removed then, covering a
// record whose first upload happened under it.
func (e *Engine) RemoveRemote(ctx context.Context, collection string, localID int64, remoteKey string) error {
	if err := e.requireSession(); err != nil {
		return err
	}
	key := remoteKey
	if key == "" {
		key = FallbackKey(collection, localID)
	}
	if err := e.remote.Remove(ctx, RemoteCollection(collection), key); err != nil {
		return fmt.Errorf("remote delete %s/%s failed: %w", collection, key, err)
	}
	return nil
}

// SweepAll re-uploads every local record in every collection. The
// sweep is the self-healing layer: it resends anything whose single
// upload failed or never happened, on a fixed interval, regardless of
// whether the record changed.
func (e *Engine) SweepAll(ctx context.Context) error {
	if err := e.requireSession(); err != nil {
		return err
	}

	if backlog := e.pending.TakeAll(); len(backlog) > 0 {
		e.logger.Printf("Sweep covering %d pending failed writes", len(backlog))
	}

	var pushed, failed int
	var firstErr error
	record := func(err error) {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		pushed++
	}

	products, err := e.store.GetAllProducts(ctx)
	if err != nil {
		return fmt.Errorf("sweep: failed to read products: %w", err)
	}
	for _, p := range products {
		record(e.UploadProduct(ctx, p))
	}

	sales, err := e.store.GetAllSales(ctx)
	if err != nil {
		return fmt.Errorf("sweep: failed to read sales: %w", err)
	}
	for _, s := range sales {
		// A sale carrying a remote key was ingested from another
		// device. Sales are create-only: republishing one would rewrite
		// the shared value with this device's copy (key stamped in),
		// and the creating device's next sweep would flip it back.
		if s.RemoteKey != "" {
			continue
		}
		record(e.UploadSale(ctx, s))
	}

	layaways, err := e.store.GetAllLayaways(ctx)
	if err != nil {
		return fmt.Errorf("sweep: failed to read layaways: %w", err)
	}
	for _, l := range layaways {
		record(e.UploadLayaway(ctx, l))
	}

	owners, err := e.store.GetAllOwners(ctx)
	if err != nil {
		return fmt.Errorf("sweep: failed to read owners: %w", err)
	}
	for _, o := range owners {
		record(e.UploadOwner(ctx, o))
	}

	settings, err := e.store.GetAllSettings(ctx)
	if err != nil {
		return fmt.Errorf("sweep: failed to read settings: %w", err)
	}
	for _, st := range settings {
		record(e.UploadSetting(ctx, st))
	}

	if failed > 0 {
		e.logger.Printf("Sweep finished: %d pushed, %d failed", pushed, failed)
		return fmt.Errorf("sweep finished with %d failed uploads: %w", failed, firstErr)
	}
	e.logger.Printf("Sweep finished: %d records pushed", pushed)
	return nil
}
