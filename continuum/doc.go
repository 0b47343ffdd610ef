// Package continuum manages the epoch lifecycle over an identity manager
// and a memory store: it brackets spans of ledger activity with
// begin/end operations, checkpoints each span into a signed epoch
// manifest, and audits the resulting manifest lineage for continuity,
// signature validity, and metric trends.
//
// # State machine
//
// Each Continuum instance holds at most one active epoch:
//
//	{no active epoch} --BeginEpoch--> {active epoch} --EndEpoch--> {no active epoch}
//
// BeginEpoch on an already-active instance implicitly closes the running
// epoch first (observable via the auto_closed metric on its manifest);
// EndEpoch on an idle instance returns ErrNoActiveEpoch.
//
// # Failure posture
//
// Durability failures propagate as hard errors. Integrity and continuity
// problems - malformed manifests in history, broken parent links, failed
// signatures - are surfaced as structured report data (counters, break
// lists, validity flags) rather than errors, because embedding
// applications must decide their own response.
package continuum
