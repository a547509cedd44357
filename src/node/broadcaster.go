package node

import (
	"errors"

	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/ashwinbangalore/irohaBG/src/net"
	"github.com/ashwinbangalore/irohaBG/src/ordering"
	"github.com/ashwinbangalore/irohaBG/src/peers"
	"github.com/ashwinbangalore/irohaBG/src/yac"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// errNotOrderingPeer is returned to peers that forward transactions to a node
// which does not run the ordering service.
var errNotOrderingPeer = errors.New("not the ordering peer")

var errBadProposalSignature = errors.New("invalid proposal signature")

// others returns the peers other than this node.
func (n *Node) others() []*peers.Peer {
	_, others := peers.ExcludePeer(n.peers.Peers, n.validator.PublicKeyHex())
	return others
}

// broadcastLimit bounds the sends of one broadcast in flight at once.
const broadcastLimit = 16

// fanOut sends a message to every other peer. It returns immediately: the
// callers of the yac and ordering interfaces hold their locks while
// broadcasting. A broadcast with an unreachable peer is counted as failed.
func (n *Node) fanOut(msg string, send func(target string) error) {
	targets := n.others()

	go func() {
		var g errgroup.Group
		g.SetLimit(broadcastLimit)
		for _, p := range targets {
			p := p
			g.Go(func() error {
				err := send(p.NetAddr)
				if err != nil {
					n.logger.WithError(err).WithFields(logrus.Fields{
						"msg":  msg,
						"peer": p.Moniker,
					}).Debug("Broadcast")
				}
				return err
			})
		}
		n.metrics.Broadcast(msg, g.Wait())
	}()
}

// BroadcastVote implements yac.Broadcaster
func (n *Node) BroadcastVote(v *yac.Vote) {
	req := &net.VoteRequest{FromID: n.validator.ID(), Vote: *v}
	n.fanOut("vote", func(target string) error {
		var resp net.VoteResponse
		return n.trans.Vote(target, req, &resp)
	})
}

// BroadcastCommit implements yac.Broadcaster
func (n *Node) BroadcastCommit(votes []yac.Vote) {
	req := &net.CommitRequest{FromID: n.validator.ID(), Votes: votes}
	n.fanOut("commit", func(target string) error {
		var resp net.CommitResponse
		return n.trans.Commit(target, req, &resp)
	})
}

// BroadcastProposal implements ordering.ProposalBroadcaster. The Proposal is
// signed with the validator key, the local gate receives it directly.
func (n *Node) BroadcastProposal(p *ledger.Proposal) {
	signed := *p
	if err := signed.Sign(n.validator.Provider()); err != nil {
		n.logger.WithError(err).Error("Signing proposal")
		return
	}

	n.gate.OnProposal(&signed)

	req := &net.ProposalRequest{FromID: n.validator.ID(), Proposal: signed}
	n.fanOut("proposal", func(target string) error {
		var resp net.ProposalResponse
		return n.trans.Propose(target, req, &resp)
	})
}

// ForwardTransactions implements ordering.Forwarder. Transactions go to the
// local Service on the ordering peer, and over the network otherwise.
func (n *Node) ForwardTransactions(txs []*ledger.Transaction) []error {
	if n.service != nil {
		return n.service.Enqueue(txs)
	}

	errs := make([]error, len(txs))

	leader := n.peers.First()
	if leader == nil {
		for i := range errs {
			errs[i] = errNotOrderingPeer
		}
		return errs
	}

	req := &net.TransactionsRequest{FromID: n.validator.ID(), Transactions: txs}
	var resp net.TransactionsResponse
	if err := n.trans.SubmitTransactions(leader.NetAddr, req, &resp); err != nil {
		for i := range errs {
			errs[i] = err
		}
		return errs
	}

	for i := range errs {
		if i >= len(resp.Errors) {
			break
		}
		errs[i] = remoteError(resp.Errors[i])
	}
	return errs
}

// remoteError turns an error string returned by the ordering peer back into
// an error, restoring the sentinel values callers compare against.
func remoteError(s string) error {
	switch s {
	case "":
		return nil
	case ordering.ErrAlreadyQueued.Error():
		return ordering.ErrAlreadyQueued
	default:
		return errors.New(s)
	}
}

// errorStrings is the inverse of remoteError.
func errorStrings(errs []error) []string {
	res := make([]string, len(errs))
	for i, err := range errs {
		if err != nil {
			res[i] = err.Error()
		}
	}
	return res
}
