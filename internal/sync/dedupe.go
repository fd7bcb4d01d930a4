package sync

import (
	"github.com/graciadivina/tiendita/internal/schema"
)

// DedupeLayaways collapses duplicate layaways from a list before it is
// rendered, keeping the first-seen entry. Two entries are duplicates
// if they share a remote key, or (absent one) a normalized customer
// name + normalized phone + exact creation timestamp.
//
// This is a defensive second layer over the merge-time identity rule:
// rapid-fire concurrent creation from two offline devices can slip
// past the natural-key heuristic, and the view must never show two
// cards for one real-world transaction.
func DedupeLayaways(layaways []*schema.Layaway) []*schema.Layaway {
	if len(layaways) < 2 {
		return layaways
	}

	seenKey := make(map[string]bool)
	seenNatural := make(map[string]bool)
	out := make([]*schema.Layaway, 0, len(layaways))

	for _, l := range layaways {
		if l.RemoteKey != "" {
			if seenKey[l.RemoteKey] {
				continue
			}
			seenKey[l.RemoteKey] = true
			out = append(out, l)
			continue
		}

		natural := schema.NormalizeName(l.CustomerName) + "|" +
			schema.NormalizePhone(l.CustomerPhone) + "|" +
			l.CreatedAt.UTC().Format("2006-01-02T15:04:05.999999999")
		if seenNatural[natural] {
			continue
		}
		seenNatural[natural] = true
		out = append(out, l)
	}
	return out
}
