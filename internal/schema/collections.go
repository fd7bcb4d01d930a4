package schema

// Local collection names. These are the store-side identifiers; the
// sync engine maps them to the Spanish collection names used in the
// remote tree.
const (
	CollectionProducts = "products"
	CollectionSales    = "sales"
	CollectionLayaways = "layaways"
	CollectionOwners   = "owners"
	CollectionSettings = "settings"
)

// Collections lists every syncable collection in sweep order.
var Collections = []string{
	CollectionProducts,
	CollectionSales,
	CollectionLayaways,
	CollectionOwners,
	CollectionSettings,
}
