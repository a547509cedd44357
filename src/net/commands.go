package net

import (
	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/ashwinbangalore/irohaBG/src/yac"
)

// TransactionsRequest forwards transactions to the ordering peer.
type TransactionsRequest struct {
	FromID       uint32
	Transactions []*ledger.Transaction
}

// TransactionsResponse lists, for each forwarded transaction, an empty string
// if it was queued or the reason it was refused.
type TransactionsResponse struct {
	FromID uint32
	Errors []string
}

// ProposalRequest carries the Proposal of one round.
type ProposalRequest struct {
	FromID   uint32
	Proposal ledger.Proposal
}

// ProposalResponse ...
type ProposalResponse struct {
	FromID  uint32
	Success bool
}

// VoteRequest carries a peer's vote for a round.
type VoteRequest struct {
	FromID uint32
	Vote   yac.Vote
}

// VoteResponse ...
type VoteResponse struct {
	FromID  uint32
	Success bool
}

// CommitRequest carries a supermajority of votes for the same hash.
type CommitRequest struct {
	FromID uint32
	Votes  []yac.Vote
}

// CommitResponse ...
type CommitResponse struct {
	FromID  uint32
	Success bool
}

// BlocksRequest asks for the committed blocks with heights in [From, To].
type BlocksRequest struct {
	FromID uint32
	From   uint64
	To     uint64
}

// BlocksResponse returns the requested blocks, in height order. It stops at
// the responder's height.
type BlocksResponse struct {
	FromID uint32
	Blocks []*ledger.Block
}
