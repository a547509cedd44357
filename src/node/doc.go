// Package node runs one peer of the ledger network.
//
// A Node wires the pipeline of a peer together: the ordering gate (and, on
// the ordering peer, the ordering service), the simulator, the consensus gate,
// the synchronizer and the block loader, all driven by the peer communication
// service. It owns the transport: incoming RPCs are dispatched to the
// component they address, and outgoing messages are broadcast concurrently to
// the other peers.
//
// Messages
//
// Peers talk through five RPC commands, defined in the net package:
// TransactionsRequest forwards client transactions to the ordering peer;
// ProposalRequest carries the Proposal of a round from the ordering peer to
// everyone; VoteRequest carries a peer's signed vote; CommitRequest carries
// the supermajority of votes that decided a round; BlocksRequest fetches
// committed blocks for catch-up.
//
// Failures
//
// An unreachable peer is logged and skipped; the pipeline relies on timeouts
// and catch-up to make progress. A ledger store failure stops the pipeline and
// moves the node to the Failed state.
package node
