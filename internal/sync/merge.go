package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/graciadivina/tiendita/internal/remote"
	"github.com/graciadivina/tiendita/internal/schema"
)

// ingestSnapshot merges one inbound collection snapshot into the local
// store. Snapshots arrive at collection granularity, so deletions are
// detected by diffing against the key set of the previous snapshot:
// a key that was present last time and is gone now was removed
// remotely. The first snapshot after subscribing only seeds that set,
// so records that exist locally but were never uploaded are not
// mistaken for remote deletions.
func (e *Engine) ingestSnapshot(ctx context.Context, collection string, snap remote.Snapshot) {
	e.lastSeenMu.Lock()
	prev := e.lastSeen[collection]
	current := make(map[string]struct{}, len(snap))
	for key := range snap {
		current[key] = struct{}{}
	}
	e.lastSeen[collection] = current
	e.lastSeenMu.Unlock()

	changed := false

	if prev != nil {
		for key := range prev {
			if _, still := current[key]; still {
				continue
			}
			if e.handleRemoteDelete(ctx, collection, key) {
				changed = true
			}
		}
	}

	for key, raw := range snap {
		if e.ingestOne(ctx, collection, key, raw) {
			changed = true
		}
	}

	if changed {
		e.notifier.Changed(collection)
	}
}

// ingestOne merges one inbound record. The per-key in-flight marker
// makes overlapping deliveries of the same key a no-op: the losing
// caller returns without side effects and the next snapshot carries
// the final state anyway.
func (e *Engine) ingestOne(ctx context.Context, collection, key string, raw json.RawMessage) bool {
	marker := collection + "_" + key
	if !e.inflight.TryLock(marker) {
		return false
	}
	defer e.inflight.Unlock(marker)

	var (
		changed bool
		err     error
	)
	switch collection {
	case schema.CollectionProducts:
		changed, err = e.mergeProduct(ctx, key, raw)
	case schema.CollectionSales:
		changed, err = e.mergeSale(ctx, key, raw)
	case schema.CollectionLayaways:
		changed, err = e.mergeLayaway(ctx, key, raw)
	case schema.CollectionOwners:
		changed, err = e.mergeOwner(ctx, key, raw)
	case schema.CollectionSettings:
		changed, err = e.mergeSetting(ctx, key, raw)
	default:
		e.logger.Printf("WARNING: ignoring record for unknown collection %s", collection)
		return false
	}
	if err != nil {
		// One bad record never halts ingestion of its siblings.
		e.logger.Printf("WARNING: skipping %s/%s: %v", collection, key, err)
		return false
	}
	return changed
}

// laterThan implements the last-write-wins tiebreak: the inbound side
// wins only when both stamps exist and the inbound one is strictly
// later. Absent or equal stamps prefer the local copy, so a stale echo
// of this device's own upload never clobbers a newer local edit.
func laterThan(inbound, local time.Time) bool {
	if inbound.IsZero() || local.IsZero() {
		return false
	}
	return inbound.After(local)
}

func (e *Engine) mergeProduct(ctx context.Context, key string, raw json.RawMessage) (bool, error) {
	var inbound schema.Product
	if err := json.Unmarshal(raw, &inbound); err != nil {
		return false, err
	}
	inbound.RemoteKey = key

	products, err := e.store.GetAllProducts(ctx)
	if err != nil {
		return false, err
	}

	var local *schema.Product
	for _, p := range products {
		if p.RemoteKey == key {
			local = p
			break
		}
	}
	if local == nil {
		for _, p := range products {
			if p.RemoteKey == "" && e.resolver.Product(p, &inbound) {
				local = p
				break
			}
		}
	}

	if local == nil {
		inbound.SetDefaults()
		if _, err := e.store.AddProduct(ctx, &inbound); err != nil {
			return false, err
		}
		return true, nil
	}

	changed := false
	if local.RemoteKey == "" {
		// Link first; field values are settled separately below.
		local.RemoteKey = key
		if err := e.store.UpdateProduct(ctx, local); err != nil {
			return false, err
		}
		changed = true
	}

	if laterThan(inbound.UpdatedAt, local.UpdatedAt) {
		inbound.LocalID = local.LocalID
		if err := e.store.UpdateProduct(ctx, &inbound); err != nil {
			return false, err
		}
		changed = true
	}
	return changed, nil
}

// mergeSale inserts an inbound sale the store has never seen. A sale
// already present, whether matched by remote key or by ticket number,
// is left untouched: sales are never mutated, not even to stamp a
// remote key.
func (e *Engine) mergeSale(ctx context.Context, key string, raw json.RawMessage) (bool, error) {
	var inbound schema.Sale
	if err := json.Unmarshal(raw, &inbound); err != nil {
		return false, err
	}
	inbound.RemoteKey = key

	sales, err := e.store.GetAllSales(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range sales {
		if s.RemoteKey == key || e.resolver.Sale(s, &inbound) {
			return false, nil
		}
	}

	inbound.SetDefaults()
	if _, err := e.store.AddSale(ctx, &inbound); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) mergeLayaway(ctx context.Context, key string, raw json.RawMessage) (bool, error) {
	var inbound schema.Layaway
	if err := json.Unmarshal(raw, &inbound); err != nil {
		return false, err
	}
	inbound.RemoteKey = key

	layaways, err := e.store.GetAllLayaways(ctx)
	if err != nil {
		return false, err
	}

	var local *schema.Layaway
	for _, l := range layaways {
		if l.RemoteKey == key {
			local = l
			break
		}
	}
	if local == nil {
		for _, l := range layaways {
			if l.RemoteKey == "" && e.resolver.Layaway(l, &inbound) {
				local = l
				break
			}
		}
	}

	if local == nil {
		inbound.SetDefaults()
		inbound.RecalcTotals()
		if _, err := e.store.AddLayaway(ctx, &inbound); err != nil {
			return false, err
		}
		return true, nil
	}

	changed := false
	if local.RemoteKey == "" {
		local.RemoteKey = key
		if err := e.store.UpdateLayaway(ctx, local); err != nil {
			return false, err
		}
		changed = true
	}

	if laterThan(inbound.UpdatedAt, local.UpdatedAt) {
		inbound.LocalID = local.LocalID
		inbound.RecalcTotals()
		if err := e.store.UpdateLayaway(ctx, &inbound); err != nil {
			return false, err
		}
		return true, nil
	}

	// Even when the local side wins, the stored aggregates must agree
	// with the payments array; repair drift quietly.
	paid, pending := local.TotalPaid, local.PendingAmount
	local.RecalcTotals()
	if local.TotalPaid != paid || local.PendingAmount != pending {
		if err := e.store.UpdateLayaway(ctx, local); err != nil {
			return false, err
		}
		changed = true
	}
	return changed, nil
}

func (e *Engine) mergeOwner(ctx context.Context, key string, raw json.RawMessage) (bool, error) {
	var inbound schema.Owner
	if err := json.Unmarshal(raw, &inbound); err != nil {
		return false, err
	}
	inbound.RemoteKey = key

	owners, err := e.store.GetAllOwners(ctx)
	if err != nil {
		return false, err
	}

	var local *schema.Owner
	for _, o := range owners {
		if o.RemoteKey == key {
			local = o
			break
		}
	}
	if local == nil {
		for _, o := range owners {
			if o.RemoteKey == "" && e.resolver.Owner(o, &inbound) {
				local = o
				break
			}
		}
	}

	if local == nil {
		inbound.SetDefaults()
		if _, err := e.store.AddOwner(ctx, &inbound); err != nil {
			return false, err
		}
		return true, nil
	}

	changed := false
	if local.RemoteKey == "" {
		local.RemoteKey = key
		if err := e.store.UpdateOwner(ctx, local); err != nil {
			return false, err
		}
		changed = true
	}

	if laterThan(inbound.UpdatedAt, local.UpdatedAt) {
		inbound.LocalID = local.LocalID
		if err := e.store.UpdateOwner(ctx, &inbound); err != nil {
			return false, err
		}
		changed = true
	}
	return changed, nil
}

func (e *Engine) mergeSetting(ctx context.Context, key string, raw json.RawMessage) (bool, error) {
	var inbound schema.Setting
	if err := json.Unmarshal(raw, &inbound); err != nil {
		return false, err
	}
	inbound.Key = key

	local, err := e.store.GetSetting(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		if err := e.store.PutSetting(ctx, &inbound); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if laterThan(inbound.UpdatedAt, local.UpdatedAt) {
		if err := e.store.PutSetting(ctx, &inbound); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// handleRemoteDelete reacts to a key that vanished from the remote
// tree. Products, owners and pending layaways follow the delete; a
// completed layaway is a finished money trail and survives, to be
// re-uploaded by the next sweep. Sales and settings ignore remote
// deletes entirely.
func (e *Engine) handleRemoteDelete(ctx context.Context, collection, key string) bool {
	switch collection {
	case schema.CollectionProducts:
		products, err := e.store.GetAllProducts(ctx)
		if err != nil {
			e.logger.Printf("WARNING: remote delete %s/%s: %v", collection, key, err)
			return false
		}
		for _, p := range products {
			if p.RemoteKey != key {
				continue
			}
			if err := e.store.DeleteProduct(ctx, p.LocalID); err != nil {
				e.logger.Printf("WARNING: remote delete %s/%s: %v", collection, key, err)
				return false
			}
			return true
		}

	case schema.CollectionOwners:
		owners, err := e.store.GetAllOwners(ctx)
		if err != nil {
			e.logger.Printf("WARNING: remote delete %s/%s: %v", collection, key, err)
			return false
		}
		for _, o := range owners {
			if o.RemoteKey != key {
				continue
			}
			if err := e.store.DeleteOwner(ctx, o.LocalID); err != nil {
				e.logger.Printf("WARNING: remote delete %s/%s: %v", collection, key, err)
				return false
			}
			return true
		}

	case schema.CollectionLayaways:
		layaways, err := e.store.GetAllLayaways(ctx)
		if err != nil {
			e.logger.Printf("WARNING: remote delete %s/%s: %v", collection, key, err)
			return false
		}
		for _, l := range layaways {
			if l.RemoteKey != key {
				continue
			}
			if l.Status == schema.LayawayCompleted {
				e.logger.Printf("Ignoring remote delete of completed layaway %s", key)
				return false
			}
			if err := e.store.DeleteLayaway(ctx, l.LocalID); err != nil {
				e.logger.Printf("WARNING: remote delete %s/%s: %v", collection, key, err)
				return false
			}
			return true
		}

	case schema.CollectionSales, schema.CollectionSettings:
		// Sales are an append-only record of money received; settings
		// always have a local value worth keeping. Neither follows a
		// remote removal.
	}
	return false
}
