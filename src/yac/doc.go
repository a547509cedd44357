// Package yac implements the consensus gate: byzantine agreement, among a
// fixed set of N peers tolerating f faulty ones, on one candidate block hash
// per round.
//
// Every peer simulates the round's proposal, signs a Vote for the hash of its
// candidate block and broadcasts it. Votes are tallied per round in a
// RoundTable. A hash that collects votes from a supermajority (2N/3+1, which is
// 2f+1 when N = 3f+1) of distinct peers is committed, and the peer that sees it
// first broadcasts the confirming votes so that every peer reaches the same
// decision.
//
// A round is rejected as soon as no hash can reach the supermajority any more:
// with V distinct voters so far and c the largest tally, that is when
// c + (N - V) < quorum. Otherwise it is rejected when the vote delay expires.
// No tie-break is needed: two hashes can never both reach the quorum, because
// two quorums share at least f+1 peers, one of which is honest and votes once
// per round.
package yac
