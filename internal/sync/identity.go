package sync

import "github.com/graciadivina/tiendita/internal/schema"

// Resolvers holds the natural-key identity heuristic for each
// collection: a pure predicate deciding whether a local record and an
// inbound remote record are the same logical entity when no remote key
// links them. Each is replaceable; the engine checks remote-key
// equality itself before consulting these.
type Resolvers struct {
	Product func(local, remote *schema.Product) bool
	Sale    func(local, remote *schema.Sale) bool
	Layaway func(local, remote *schema.Layaway) bool
	Owner   func(local, remote *schema.Owner) bool
}

// DefaultResolvers returns the heuristics the shared tree has always
// been reconciled with.
//
// The product rule (SKU, else name+price) can falsely merge two
// distinct products sharing a name and price point; that risk is
// accepted for offline-created-record convergence. Replace the
// resolver for a stricter deployment.
func DefaultResolvers() Resolvers {
	return Resolvers{
		Product: MatchProduct,
		Sale:    MatchSale,
		Layaway: MatchLayaway,
		Owner:   MatchOwner,
	}
}

// MatchProduct matches on SKU when both sides have one, else on
// name + price.
func MatchProduct(local, remote *schema.Product) bool {
	if local.SKU != "" && remote.SKU != "" {
		return local.SKU == remote.SKU
	}
	return local.Name == remote.Name && local.Price == remote.Price
}

// MatchSale matches on ticket number.
func MatchSale(local, remote *schema.Sale) bool {
	return local.TicketNumber != "" && local.TicketNumber == remote.TicketNumber
}

// MatchLayaway matches on normalized customer name + normalized phone
// + same calendar day of creation. Both sides must carry a name and a
// phone; a missing phone never matches (too weak a key for money).
func MatchLayaway(local, remote *schema.Layaway) bool {
	if local.CustomerName == "" || remote.CustomerName == "" {
		return false
	}
	if local.CustomerPhone == "" || remote.CustomerPhone == "" {
		return false
	}
	return schema.NormalizeName(local.CustomerName) == schema.NormalizeName(remote.CustomerName) &&
		schema.NormalizePhone(local.CustomerPhone) == schema.NormalizePhone(remote.CustomerPhone) &&
		schema.SameDay(local.Date, remote.Date)
}

// MatchOwner matches on exact name.
func MatchOwner(local, remote *schema.Owner) bool {
	return local.Name != "" && local.Name == remote.Name
}
