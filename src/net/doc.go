// Package net implements the transports peers use to exchange the messages of
// the pipeline.
//
// A Transport exposes one typed method per message:
//
// - SubmitTransactions: forwards client transactions to the ordering peer
//
// - Propose: broadcasts a Proposal from the ordering peer to every peer
//
// - Vote: broadcasts a peer's vote for a candidate block hash
//
// - Commit: broadcasts the set of votes that forms a supermajority
//
// - Blocks: requests committed blocks by height range (block loader)
//
// Incoming requests are delivered on the Consumer channel as RPC objects,
// which the node answers with Respond.
//
// There are two implementations:
//
// - Inmem: in-memory transport used for tests and single-process networks
//
// - TCP: a NetworkTransport over a TCP StreamLayer. Each request is framed by
// one byte giving the message type followed by the msgpack encoded request.
// The response is an error string followed by the msgpack encoded response.
package net
