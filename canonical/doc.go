// Package canonical provides the deterministic encoding primitives shared by
// the ledger: RFC 8785-style canonical JSON and domain-separated SHA-256
// digests.
//
// Every content-addressed identity in this module (blob digests, event
// fingerprints, the head-hash chain, manifest signing bytes) is computed over
// the output of Marshal. Two values that are semantically equal always produce
// byte-identical encodings, so the same inputs always produce the same digest
// across processes, restarts, and platforms.
package canonical
