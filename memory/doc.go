// Package memory implements the ledger's Memory Store: content-addressed
// blob storage plus an append-only event log folded into a running
// head-hash chain.
//
// # Head-hash chain
//
// Every appended event is fingerprinted (domain-separated SHA-256 over its
// canonical JSON encoding) and folded into the chain:
//
//	head = SHA256(head-domain || 0x00 || prev_head || fingerprint)
//
// The chain is fully deterministic given the ordered event list, sensitive
// to any change in any event field or to reordering, and updatable
// incrementally on each append without rehashing prior history. Reloading
// the full log therefore reproduces the exact head hash of the original
// in-memory accumulation.
//
// # Durability
//
// Persistence sits behind the Backend interface with two implementations:
// FileBackend (one JSONL record per event, one file per unique blob
// digest) and SQLiteBackend (events and blobs tables in a single WAL-mode
// database). Both replay the full event history at open; neither compacts
// it - unbounded growth is the caller's concern.
//
// # Concurrency
//
// The design assumes a single-writer owner per store. Store serializes its
// own state internally so snapshot reads (Events, ExportSince, HeadHash)
// never race an in-flight append, but callers remain responsible for
// serializing writers and for keeping one process per storage path.
package memory
