package yac

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto"
	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/ashwinbangalore/irohaBG/src/peers"
	"github.com/sirupsen/logrus"
)

// FutureRounds is how many rounds ahead of the current one votes are
// buffered. Votes further ahead, or for rounds already decided, are dropped.
const FutureRounds = 8

// ErrStaleRound is returned when voting in a round that is already decided.
var ErrStaleRound = errors.New("round already decided")

// Broadcaster delivers votes and commit messages to the other peers. Calls
// must not block on the network.
type Broadcaster interface {
	BroadcastVote(v *Vote)
	BroadcastCommit(votes []Vote)
}

// Metrics receives counters from the gate. May be nil.
type Metrics interface {
	VoteReceived(accepted bool)
	RoundDecided(outcome string)
}

// Yac is the consensus gate. It is safe for concurrent use: votes and commit
// messages come from the network while the pipeline calls Vote.
type Yac struct {
	sync.Mutex

	peers     peers.Query
	provider  crypto.Provider
	network   Broadcaster
	metrics   Metrics
	voteDelay time.Duration
	logger    *logrus.Entry

	table *RoundTable
	// round is the lowest undecided round. Every round below it has been
	// decided or skipped.
	round uint64
	// anchored is false until this peer first enters or decides a round.
	// Before that, round says nothing about where the network is.
	anchored bool
	// voting is true while this peer has cast its vote for round and waits
	// for the outcome.
	voting    bool
	candidate *ledger.Block
	timer     *time.Timer
	// rejected remembers recently rejected rounds, so that a late commit for
	// one of them can still be delivered.
	rejected map[uint64]bool

	// pending holds decisions in the order they were taken, until deliver
	// hands them to decisionCh.
	pending    []Decision
	notifyCh   chan struct{}
	decisionCh chan Decision
	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// New creates a gate for the peer set returned by query, signing with
// provider. The first round is startRound.
func New(query peers.Query,
	provider crypto.Provider,
	network Broadcaster,
	voteDelay time.Duration,
	startRound uint64,
	metrics Metrics,
	logger *logrus.Entry,
) *Yac {
	ps := query.CurrentPeers()

	if logger == nil {
		l := logrus.New()
		l.Level = logrus.DebugLevel
		logger = logrus.NewEntry(l)
	}

	y := &Yac{
		peers:      query,
		provider:   provider,
		network:    network,
		metrics:    metrics,
		voteDelay:  voteDelay,
		logger:     logger.WithField("component", "yac"),
		table:      NewRoundTable(ps.Len(), ps.SuperMajority()),
		round:      startRound,
		rejected:   make(map[uint64]bool),
		notifyCh:   make(chan struct{}, 1),
		decisionCh: make(chan Decision, 64),
		shutdownCh: make(chan struct{}),
	}

	go y.deliver()

	return y
}

// Decisions returns the stream of round outcomes, in increasing round order.
// A late commit for a rejected round is the only exception.
func (y *Yac) Decisions() <-chan Decision {
	return y.decisionCh
}

// Round returns the lowest undecided round.
func (y *Yac) Round() uint64 {
	y.Lock()
	defer y.Unlock()
	return y.round
}

// Vote casts this peer's vote for block in round and broadcasts it. The round
// is decided when a supermajority agrees, when agreement becomes impossible, or
// when the vote delay expires.
func (y *Yac) Vote(round uint64, block *ledger.Block) error {
	y.Lock()

	if round < y.round || (round == y.round && y.voting) {
		y.Unlock()
		return fmt.Errorf("round %d: %w", round, ErrStaleRound)
	}

	vote, err := NewVote(round, block.Height(), block.Hash, y.provider)
	if err != nil {
		y.Unlock()
		return err
	}

	y.enter(round)
	y.candidate = block

	idx, ok := y.peers.CurrentPeers().Index(y.provider.PublicKey())
	if ok {
		y.table.Add(idx, *vote)
	}

	y.logger.WithFields(logrus.Fields{
		"round":  round,
		"height": block.Height(),
		"hash":   common.ShortHex(block.Hash),
	}).Debug("Vote")

	y.queue(y.evaluate())
	y.Unlock()

	if ok {
		y.network.BroadcastVote(vote)
	}

	return nil
}

// Abstain enters round without voting, for a peer that has no valid candidate
// for it. The round is still decided by the other peers' votes or by the vote
// delay.
func (y *Yac) Abstain(round uint64) error {
	y.Lock()

	if round < y.round || (round == y.round && y.voting) {
		y.Unlock()
		return fmt.Errorf("round %d: %w", round, ErrStaleRound)
	}

	y.enter(round)
	y.logger.WithField("round", round).Debug("Abstain")

	y.queue(y.evaluate())
	y.Unlock()

	return nil
}

// enter moves the gate to round and arms the vote delay. Rounds in between
// are skipped without a decision.
func (y *Yac) enter(round uint64) {
	if round > y.round {
		y.logger.WithFields(logrus.Fields{
			"from": y.round,
			"to":   round,
		}).Debug("Skipping rounds")
		y.table.Evict(round - 1)
	}

	y.round = round
	y.anchored = true
	y.voting = true
	y.candidate = nil

	if y.timer != nil {
		y.timer.Stop()
	}
	y.timer = time.AfterFunc(y.voteDelay, func() { y.onTimeout(round) })
}

// OnVote processes a vote received from another peer.
func (y *Yac) OnVote(v Vote) error {
	ps := y.peers.CurrentPeers()

	idx, ok := ps.Index(v.Voter())
	if !ok {
		y.countVote(false)
		return fmt.Errorf("vote from unknown peer %s", common.ShortHex(v.Voter()))
	}
	if err := v.Verify(); err != nil {
		y.countVote(false)
		return err
	}

	y.Lock()

	if !y.inWindow(v.Round) {
		y.Unlock()
		y.countVote(false)
		y.logger.WithFields(logrus.Fields{
			"round":   v.Round,
			"current": y.round,
		}).Debug("Dropping vote outside window")
		return nil
	}

	status := y.table.Add(idx, v)
	if status == Equivocation {
		y.Unlock()
		y.countVote(false)
		y.logger.WithFields(logrus.Fields{
			"round": v.Round,
			"peer":  common.ShortHex(v.Voter()),
		}).Warn("Equivocating vote")
		return nil
	}

	y.queue(y.evaluate())
	y.Unlock()

	y.countVote(status == Added)

	return nil
}

// inWindow reports whether a vote for round can be buffered. An unanchored
// gate buffers votes for up to FutureRounds distinct rounds. Must be called
// with the lock held.
func (y *Yac) inWindow(round uint64) bool {
	if round < y.round {
		return false
	}
	if y.anchored {
		return round < y.round+FutureRounds
	}
	return y.table.Has(round) || y.table.Len() < FutureRounds
}

// OnCommit processes a commit message: a set of votes, from a supermajority of
// distinct peers, for the same hash in the same round.
func (y *Yac) OnCommit(votes []Vote) error {
	if len(votes) == 0 {
		return errors.New("empty commit")
	}

	ps := y.peers.CurrentPeers()
	first := votes[0]
	seen := make(map[int]bool)

	for _, v := range votes {
		if v.Round != first.Round ||
			v.Height != first.Height ||
			!bytes.Equal(v.BlockHash, first.BlockHash) {
			return errors.New("commit votes disagree")
		}
		idx, ok := ps.Index(v.Voter())
		if !ok {
			return fmt.Errorf("commit vote from unknown peer %s", common.ShortHex(v.Voter()))
		}
		if err := v.Verify(); err != nil {
			return err
		}
		seen[idx] = true
	}

	if len(seen) < ps.SuperMajority() {
		return fmt.Errorf("commit has %d voters, need %d", len(seen), ps.SuperMajority())
	}

	y.Lock()

	var d *Decision

	switch {
	case first.Round < y.round:
		if !y.rejected[first.Round] {
			y.Unlock()
			return nil
		}
		delete(y.rejected, first.Round)
		y.logger.WithField("round", first.Round).Info("Late commit for rejected round")
		d = &Decision{
			Outcome: Commit,
			Round:   first.Round,
			Height:  first.Height,
			Hash:    first.BlockHash,
			Votes:   votes,
			Late:    true,
		}
	default:
		d = y.decide(Commit, first.Round, first.Height, first.BlockHash, votes)
	}

	y.queue([]Decision{*d})
	y.Unlock()

	return nil
}

func (y *Yac) onTimeout(round uint64) {
	y.Lock()
	if round != y.round || !y.voting {
		y.Unlock()
		return
	}
	y.logger.WithField("round", round).Debug("Vote delay expired")
	d := y.decide(Reject, round, 0, nil, nil)
	y.queue([]Decision{*d})
	y.Unlock()
}

// evaluate checks every buffered round, in order, for an outcome. Future
// rounds can only be committed: a peer that lags behind still follows a
// supermajority it can see. Only the current round, once this peer takes part
// in it, can be rejected early. Must be called with the lock held.
func (y *Yac) evaluate() []Decision {
	var res []Decision

	for _, r := range y.table.Rounds() {
		if r < y.round {
			continue
		}

		result, hashHex := y.table.Evaluate(r)

		switch result {
		case Agreed:
			votes := y.table.Votes(r, hashHex)
			d := y.decide(Commit, r, votes[0].Height, votes[0].BlockHash, votes)
			res = append(res, *d)
			y.network.BroadcastCommit(votes)
		case Unreachable:
			if r == y.round && y.voting {
				d := y.decide(Reject, r, 0, nil, nil)
				res = append(res, *d)
			}
		}
	}

	return res
}

// decide records the outcome of round and moves to the next one. Must be
// called with the lock held.
func (y *Yac) decide(outcome Outcome, round, height uint64, hash []byte, votes []Vote) *Decision {
	d := &Decision{
		Outcome: outcome,
		Round:   round,
		Height:  height,
		Hash:    hash,
		Votes:   votes,
	}

	if outcome == Commit &&
		y.candidate != nil &&
		round == y.round &&
		bytes.Equal(y.candidate.Hash, hash) {
		d.Block = y.candidate
	}

	if outcome == Reject {
		y.rejected[round] = true
		for r := range y.rejected {
			if r+FutureRounds*8 < round {
				delete(y.rejected, r)
			}
		}
	}

	if y.timer != nil && round >= y.round {
		y.timer.Stop()
		y.timer = nil
	}

	y.table.Evict(round)
	y.round = round + 1
	y.anchored = true
	y.voting = false
	y.candidate = nil

	y.logger.WithFields(logrus.Fields{
		"round":   round,
		"outcome": outcome.String(),
		"height":  height,
		"hash":    common.ShortHex(hash),
	}).Debug("Decision")

	if y.metrics != nil {
		y.metrics.RoundDecided(outcome.String())
	}

	return d
}

// queue appends decisions to pending. Must be called with the lock held, so
// that decisions are delivered in the order they were taken.
func (y *Yac) queue(decisions []Decision) {
	if len(decisions) == 0 {
		return
	}
	y.pending = append(y.pending, decisions...)
	select {
	case y.notifyCh <- struct{}{}:
	default:
	}
}

// deliver is the only writer of decisionCh.
func (y *Yac) deliver() {
	for {
		select {
		case <-y.notifyCh:
		case <-y.shutdownCh:
			return
		}

		for {
			y.Lock()
			if len(y.pending) == 0 {
				y.Unlock()
				break
			}
			d := y.pending[0]
			y.pending = y.pending[1:]
			y.Unlock()

			select {
			case y.decisionCh <- d:
			case <-y.shutdownCh:
				return
			}
		}
	}
}

func (y *Yac) countVote(accepted bool) {
	if y.metrics != nil {
		y.metrics.VoteReceived(accepted)
	}
}

// Close stops the timer and unblocks pending emissions.
func (y *Yac) Close() {
	y.closeOnce.Do(func() {
		y.Lock()
		if y.timer != nil {
			y.timer.Stop()
		}
		y.Unlock()
		close(y.shutdownCh)
	})
}
