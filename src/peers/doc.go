// Package peers defines the peers of a permissioned ledger network and the
// collections they form.
//
// A peer is identified by its public key and reachable at a network address.
// The set of peers is fixed for the lifetime of the network: every honest
// peer loads the same peers.json file from its data directory, and the set is
// kept in a canonical order (by public key) so that every peer agrees on which
// peer comes first, on the index of each peer in vote bitmaps, and on the
// quorum.
//
// With N peers the network tolerates f = (N-1)/3 faulty peers, and a quorum
// (supermajority) is 2N/3+1 signatures, which is 2f+1 when N = 3f+1.
package peers
