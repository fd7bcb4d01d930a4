// Package sync provides the offline-first synchronization engine
// reconciling the local record store with the shared remote tree.
//
// # Overview
//
// The engine owns the reconciliation protocol between the device-local
// SQLite store and the remote rendezvous tree shared by all devices:
// key derivation, conflict resolution, upload scheduling, remote-change
// ingestion, deduplication and connectivity handling.
//
// # Architecture
//
//	Local Store (SQLite)                  Remote Tree (hub)
//	  products  ──────┐                   ┌────── productos
//	  sales           │      Engine       │       ventas
//	  layaways  ──────┼──► upload sweep ──┼────── apartados
//	  owners          │   ◄── ingestion ──│       duenas
//	  settings  ──────┘                   └────── config
//
// Local writes always succeed independently of remote state; the
// engine pushes them opportunistically (single-record uploads after
// mutations, plus a periodic full sweep) and merges inbound snapshots
// using a per-collection identity rule with last-write-wins timestamp
// resolution.
//
// # Conflict model
//
// Two records are the same logical entity if their remote keys match
// or a collection-specific natural-key heuristic matches (products:
// SKU, else name+price; layaways: normalized customer name + phone +
// same calendar day). The heuristic exists because records created
// offline carry no remote key until first synced, and two devices may
// independently create what is semantically the same record.
//
// Writes to the remote tree are full-value overwrites; the only atomic
// path is the payment-append transaction, which uses a compare-and-set
// loop against the single layaway key. Concurrent multi-field layaway
// edits from two devices outside that path remain a last-write-wins
// race; see AddLayawayPayment.
//
// # Error policy
//
// Engine failures are never surfaced as blocking errors: remote
// failures degrade to "sync will catch up later". Failed uploads are
// queued and retried at the next sweep; malformed inbound values are
// skipped with a log line and ingestion continues.
package sync
