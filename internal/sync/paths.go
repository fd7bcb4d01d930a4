package sync

import (
	"fmt"

	"github.com/graciadivina/tiendita/internal/schema"
)

// collectionMap maps local collection names to their remote (Spanish)
// collection names. The remote tree predates this implementation, so
// the dictionary is fixed.
var collectionMap = map[string]string{
	schema.CollectionProducts: "productos",
	schema.CollectionSales:    "ventas",
	schema.CollectionLayaways: "apartados",
	schema.CollectionOwners:   "duenas",
	schema.CollectionSettings: "config",
}

// reverseMap is the remote-to-local inverse of collectionMap.
var reverseMap = func() map[string]string {
	m := make(map[string]string, len(collectionMap))
	for local, remote := range collectionMap {
		m[remote] = local
	}
	return m
}()

// RemoteCollection returns the remote collection name for a local
// collection. Unknown names pass through unchanged, matching the
// permissive lookup the remote tree has always tolerated.
func RemoteCollection(local string) string {
	if remote, ok := collectionMap[local]; ok {
		return remote
	}
	return local
}

// LocalCollection returns the local collection name for a remote
// collection, or an error for an unrecognized one.
func LocalCollection(remote string) (string, error) {
	if local, ok := reverseMap[remote]; ok {
		return local, nil
	}
	return "", fmt.Errorf("unknown remote collection %q", remote)
}

// FallbackKey derives the deterministic remote key for a record that
// has not yet been linked to the remote tree. Repeated uploads of the
// same unlinked record overwrite the same key instead of duplicating.
// Owners use a distinct prefix, a legacy of the original tree layout.
func FallbackKey(collection string, localID int64) string {
	if collection == schema.CollectionOwners {
		return fmt.Sprintf("owner_%d", localID)
	}
	return fmt.Sprintf("local_%d", localID)
}
