// Package ledger defines the data that flows through the pipeline
// (transactions, proposals and blocks), the world state those transactions
// act upon, and the stores that persist committed blocks.
//
// Every hash in the ledger is the SHA256 of a canonical JSON encoding (sorted
// map keys, fixed field order) so that two honest peers processing the same
// proposal produce byte-identical blocks.
//
// The Store is single-writer: only the synchronizer calls ApplyBlock. Readers
// take a WorldStateSnapshot, which is never mutated afterwards because
// ApplyBlock builds the next world state on a copy and swaps it in once the
// block is persisted.
package ledger
