package net

// Transport provides an interface for network transports
// to allow a node to communicate with other nodes.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Consumer returns a channel that can be used to
	// consume and respond to RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// SubmitTransactions, Propose, Vote, Commit and Blocks send the
	// appropriate RPC to the target node.

	SubmitTransactions(target string, args *TransactionsRequest, resp *TransactionsResponse) error

	Propose(target string, args *ProposalRequest, resp *ProposalResponse) error

	Vote(target string, args *VoteRequest, resp *VoteResponse) error

	Commit(target string, args *CommitRequest, resp *CommitResponse) error

	Blocks(target string, args *BlocksRequest, resp *BlocksResponse) error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
