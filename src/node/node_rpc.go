package node

import (
	"fmt"

	"github.com/ashwinbangalore/irohaBG/src/net"
	"github.com/sirupsen/logrus"
)

func (n *Node) processRPC(rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case *net.TransactionsRequest:
		n.processTransactionsRequest(rpc, cmd)
	case *net.ProposalRequest:
		n.processProposalRequest(rpc, cmd)
	case *net.VoteRequest:
		n.processVoteRequest(rpc, cmd)
	case *net.CommitRequest:
		n.processCommitRequest(rpc, cmd)
	case *net.BlocksRequest:
		n.processBlocksRequest(rpc, cmd)
	default:
		n.logger.WithField("cmd", rpc.Command).Error("Unexpected RPC command")
		rpc.Respond(nil, fmt.Errorf("unexpected command"))
	}
}

func (n *Node) processTransactionsRequest(rpc net.RPC, cmd *net.TransactionsRequest) {
	n.logger.WithFields(logrus.Fields{
		"from_id": cmd.FromID,
		"txs":     len(cmd.Transactions),
	}).Debug("process TransactionsRequest")

	if n.service == nil {
		rpc.Respond(nil, errNotOrderingPeer)
		return
	}

	errs := n.service.Enqueue(cmd.Transactions)

	rpc.Respond(&net.TransactionsResponse{
		FromID: n.validator.ID(),
		Errors: errorStrings(errs),
	}, nil)
}

func (n *Node) processProposalRequest(rpc net.RPC, cmd *net.ProposalRequest) {
	n.logger.WithFields(logrus.Fields{
		"from_id": cmd.FromID,
		"round":   cmd.Proposal.Round,
		"height":  cmd.Proposal.Height,
	}).Debug("process ProposalRequest")

	resp := &net.ProposalResponse{FromID: n.validator.ID()}

	// only the ordering peer cuts proposals
	first := n.peers.First()
	if first == nil || first.ID() != cmd.FromID {
		rpc.Respond(resp, fmt.Errorf("proposal from %d: %w", cmd.FromID, errNotOrderingPeer))
		return
	}

	proposal := cmd.Proposal
	if !proposal.Verify(first.PubKeyBytes()) {
		n.logger.WithField("round", proposal.Round).Warn("Proposal signature does not match the ordering peer")
		rpc.Respond(resp, errBadProposalSignature)
		return
	}

	n.gate.OnProposal(&proposal)

	resp.Success = true
	rpc.Respond(resp, nil)
}

func (n *Node) processVoteRequest(rpc net.RPC, cmd *net.VoteRequest) {
	resp := &net.VoteResponse{FromID: n.validator.ID()}

	err := n.yac.OnVote(cmd.Vote)
	if err != nil {
		n.logger.WithError(err).WithFields(logrus.Fields{
			"from_id": cmd.FromID,
			"round":   cmd.Vote.Round,
		}).Debug("Refusing vote")
	}

	resp.Success = err == nil
	rpc.Respond(resp, err)
}

func (n *Node) processCommitRequest(rpc net.RPC, cmd *net.CommitRequest) {
	resp := &net.CommitResponse{FromID: n.validator.ID()}

	err := n.yac.OnCommit(cmd.Votes)
	if err != nil {
		n.logger.WithError(err).WithField("from_id", cmd.FromID).Debug("Refusing commit")
	}

	resp.Success = err == nil
	rpc.Respond(resp, err)
}

func (n *Node) processBlocksRequest(rpc net.RPC, cmd *net.BlocksRequest) {
	n.logger.WithFields(logrus.Fields{
		"from_id": cmd.FromID,
		"from":    cmd.From,
		"to":      cmd.To,
	}).Debug("process BlocksRequest")

	resp, err := n.loader.ProcessBlocksRequest(cmd)
	if resp == nil {
		resp = &net.BlocksResponse{}
	}
	resp.FromID = n.validator.ID()

	rpc.Respond(resp, err)
}
