// Package ordering turns the stream of client transactions into Proposals.
//
// One peer, the first of the sorted peer set, runs the Service. Every peer
// runs a Gate: Enqueue forwards transactions to the Service, which batches
// them and broadcasts one Proposal per round to all peers, itself included. A
// Proposal is cut when the queue holds MaxProposalSize transactions or when
// ProposalDelay has elapsed since the oldest queued transaction arrived. The
// Service waits for round R to be decided before cutting round R+1, and on a
// Reject puts R's transactions back at the head of the queue.
//
// The Gate buffers incoming Proposals and releases them to the pipeline one
// at a time, in round order.
package ordering
