// Package schema provides the record types shared by the local store,
// the sync engine and the hub.
//
// Every syncable record carries a LocalID assigned by the local store
// (never transmitted) and an optional RemoteKey correlating it to its
// counterpart in the shared remote tree. CreatedAt/UpdatedAt timestamps
// are the last-write-wins tiebreaker during merges.
package schema
