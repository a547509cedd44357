// Package pcs wires the ordering gate, the simulator, the consensus gate and
// the synchronizer into one sequential pipeline, and publishes the
// on_proposal and on_commit event streams.
package pcs

import (
	"context"
	"errors"

	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/ashwinbangalore/irohaBG/src/peers"
	"github.com/ashwinbangalore/irohaBG/src/simulator"
	"github.com/ashwinbangalore/irohaBG/src/yac"
	"github.com/sirupsen/logrus"
)

// Commit is the on_commit event of one round: the blocks applied for it, in
// height order, after which the channel is closed. Outside of catch-up it
// holds exactly the block committed in the round. A round that had to catch
// up also carries the blocks fetched before it, so that every applied block
// reaches subscribers once and in height order, rather than one event per
// block.
type Commit <-chan *ledger.Block

// CatchUpWindow bounds how far above the local ledger a single Proposal can
// make the peer catch up. A larger gap is closed over several rounds, or by
// the commit of the round.
const CatchUpWindow = 1000

// OrderingGate ...
type OrderingGate interface {
	Proposals() <-chan *ledger.Proposal
}

// Simulator ...
type Simulator interface {
	Process(p *ledger.Proposal) (*ledger.Block, []error, error)
}

// ConsensusGate ...
type ConsensusGate interface {
	Vote(round uint64, block *ledger.Block) error
	Abstain(round uint64) error
	Decisions() <-chan yac.Decision
}

// Synchronizer ...
type Synchronizer interface {
	Process(ctx context.Context, d yac.Decision) ([]*ledger.Block, error)
	CatchUp(ctx context.Context, target uint64, sources []*peers.Peer) ([]*ledger.Block, error)
}

// RoundObserver is told the outcome of every round, after the ledger was
// updated. block is the block committed in round, nil on a reject.
type RoundObserver interface {
	RoundDecided(round uint64, block *ledger.Block)
}

// Metrics receives counters from the PCS. May be nil.
type Metrics interface {
	EventDropped(stream string)
}

// PCS is the peer communication service.
type PCS struct {
	ordering  OrderingGate
	simulator Simulator
	consensus ConsensusGate
	sync      Synchronizer
	observers []RoundObserver
	peers     peers.Query
	logger    *logrus.Entry

	proposals *broker[*ledger.Proposal]
	commits   *broker[Commit]
}

// New ...
func New(ordering OrderingGate,
	sim Simulator,
	consensus ConsensusGate,
	sync Synchronizer,
	observers []RoundObserver,
	query peers.Query,
	metrics Metrics,
	logger *logrus.Entry,
) *PCS {
	logger = logger.WithField("component", "pcs")

	var dropped func(string)
	if metrics != nil {
		dropped = metrics.EventDropped
	}

	return &PCS{
		ordering:  ordering,
		simulator: sim,
		consensus: consensus,
		sync:      sync,
		observers: observers,
		peers:     query,
		logger:    logger,
		proposals: newBroker[*ledger.Proposal]("on_proposal", dropped, logger),
		commits:   newBroker[Commit]("on_commit", dropped, logger),
	}
}

// OnProposal subscribes to the Proposals accepted into simulation, in round
// order. The returned function cancels the subscription.
func (p *PCS) OnProposal() (<-chan *ledger.Proposal, func()) {
	return p.proposals.subscribe()
}

// OnCommit subscribes to the rounds that reach Commit.
func (p *PCS) OnCommit() (<-chan Commit, func()) {
	return p.commits.subscribe()
}

// Run executes rounds until ctx is done or a storage error makes progress
// impossible. A Proposal is only simulated once the previous round is
// decided: the ordering gate releases one Proposal per decided round.
func (p *PCS) Run(ctx context.Context) error {
	defer p.proposals.close()
	defer p.commits.close()

	for {
		select {
		case prop := <-p.ordering.Proposals():
			p.processProposal(ctx, prop)
		case d := <-p.consensus.Decisions():
			if err := p.processDecision(ctx, d); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *PCS) processProposal(ctx context.Context, prop *ledger.Proposal) {
	logger := p.logger.WithFields(logrus.Fields{
		"round":  prop.Round,
		"height": prop.Height,
		"txs":    len(prop.Transactions),
	})

	block, _, err := p.simulator.Process(prop)

	var herr simulator.HeightError
	if errors.As(err, &herr) && herr.Proposal > herr.Ledger+1 {
		target := herr.Proposal - 1
		if target-herr.Ledger > CatchUpWindow {
			target = herr.Ledger + CatchUpWindow
		}
		logger.WithFields(logrus.Fields{
			"ledger": herr.Ledger,
			"target": target,
		}).Info("Proposal ahead of ledger, catching up")
		if _, cerr := p.sync.CatchUp(ctx, target, p.catchUpSources()); cerr != nil {
			logger.WithError(cerr).Warn("Catch-up before simulation")
		}
		block, _, err = p.simulator.Process(prop)
	}

	if err != nil {
		logger.WithError(err).Debug("Cannot simulate proposal, abstaining")
		if aerr := p.consensus.Abstain(prop.Round); aerr != nil {
			logger.WithError(aerr).Debug("Abstain")
		}
		return
	}

	p.proposals.publish(func() *ledger.Proposal { return prop })

	if err := p.consensus.Vote(prop.Round, block); err != nil {
		logger.WithError(err).Debug("Vote")
	}
}

func (p *PCS) processDecision(ctx context.Context, d yac.Decision) error {
	logger := p.logger.WithFields(logrus.Fields{
		"round":   d.Round,
		"outcome": d.Outcome.String(),
		"height":  d.Height,
	})

	blocks, err := p.sync.Process(ctx, d)
	if err != nil {
		if ledger.IsStorage(err) {
			logger.WithError(err).Error("Ledger store failure, stopping")
			return err
		}
		logger.WithError(err).Error("Applying decision")
	}

	var committed *ledger.Block
	for _, b := range blocks {
		if b.Height() == d.Height {
			committed = b
		}
	}

	for _, o := range p.observers {
		o.RoundDecided(d.Round, committed)
	}

	if len(blocks) > 0 {
		p.commits.publish(func() Commit {
			ch := make(chan *ledger.Block, len(blocks))
			for _, b := range blocks {
				ch <- b
			}
			close(ch)
			return ch
		})
	}

	logger.Debug("Round done")

	return nil
}

// catchUpSources lists the peers in canonical order, which puts the ordering
// peer, whose Proposal revealed the gap, first.
func (p *PCS) catchUpSources() []*peers.Peer {
	return p.peers.CurrentPeers().Peers
}
