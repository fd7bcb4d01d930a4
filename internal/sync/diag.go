package sync

import (
	"context"
	"fmt"

	"github.com/graciadivina/tiendita/internal/schema"
)

// Diagnostics is a point-in-time report of the engine's health, used
// by the status command.
type Diagnostics struct {
	State         State          `json:"state"`
	UID           string         `json:"uid,omitempty"`
	Connected     bool           `json:"connected"`
	PendingWrites int            `json:"pendingWrites"`
	LocalCounts   map[string]int `json:"localCounts"`
	RemoteCounts  map[string]int `json:"remoteCounts,omitempty"`
}

// Diagnose collects per-collection record counts on both sides. Remote
// counts are omitted when no session exists; that is reported in the
// state, not as an error.
func (e *Engine) Diagnose(ctx context.Context) (*Diagnostics, error) {
	e.mu.Lock()
	d := &Diagnostics{
		State:       e.state,
		Connected:   e.connected,
		LocalCounts: make(map[string]int, len(schema.Collections)),
	}
	if e.session != nil {
		d.UID = e.session.UID
	}
	e.mu.Unlock()
	d.PendingWrites = e.pending.Len()

	for _, c := range schema.Collections {
		n, err := e.store.CountRecords(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("failed to count local %s: %w", c, err)
		}
		d.LocalCounts[c] = n
	}

	if !e.IsAuthenticated() {
		return d, nil
	}

	d.RemoteCounts = make(map[string]int, len(schema.Collections))
	for _, c := range schema.Collections {
		snap, err := e.remote.GetAll(ctx, RemoteCollection(c))
		if err != nil {
			return nil, fmt.Errorf("failed to read remote %s: %w", c, err)
		}
		d.RemoteCounts[c] = len(snap)
	}
	return d, nil
}
