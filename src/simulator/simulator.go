// Package simulator turns a Proposal into a candidate Block by executing it
// against a private copy of the world state.
package simulator

import (
	"fmt"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto"
	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/sirupsen/logrus"
)

// LedgerView is the part of the ledger store the simulator reads.
type LedgerView interface {
	Height() uint64
	TopHash() []byte
	WorldStateSnapshot() ledger.ReadOnlyView
}

// HeightError is returned for a Proposal that does not extend the local
// ledger.
type HeightError struct {
	Proposal uint64
	Ledger   uint64
}

func (e HeightError) Error() string {
	return fmt.Sprintf("proposal height %d does not follow ledger height %d", e.Proposal, e.Ledger)
}

// Simulator ...
type Simulator struct {
	ledger   LedgerView
	provider crypto.Provider
	logger   *logrus.Entry
}

// New ...
func New(view LedgerView, provider crypto.Provider, logger *logrus.Entry) *Simulator {
	return &Simulator{
		ledger:   view,
		provider: provider,
		logger:   logger.WithField("component", "simulator"),
	}
}

// Process validates the transactions of p in order against a copy of the
// current world state. Valid ones are applied to the copy and included in the
// candidate block, invalid ones are dropped and returned as errors. The block
// takes its timestamp from the Proposal, so that peers simulating the same
// Proposal at the same height produce the same hash. The authoritative state
// is never modified.
func (s *Simulator) Process(p *ledger.Proposal) (*ledger.Block, []error, error) {
	height := s.ledger.Height()
	if p.Height != height+1 {
		return nil, nil, HeightError{Proposal: p.Height, Ledger: height}
	}

	ws := s.ledger.WorldStateSnapshot().Copy()

	accepted := make([]*ledger.Transaction, 0, len(p.Transactions))
	var dropped []error

	for _, tx := range p.Transactions {
		if err := ws.ApplyTransaction(tx); err != nil {
			s.logger.WithError(err).WithField("tx", tx.Hex()).Debug("Dropping transaction")
			dropped = append(dropped, err)
			continue
		}
		accepted = append(accepted, tx)
	}

	block, err := ledger.NewBlock(p.Height, s.ledger.TopHash(), accepted, p.CreatedTime)
	if err != nil {
		return nil, dropped, err
	}

	if err := block.Sign(s.provider); err != nil {
		return nil, dropped, err
	}

	s.logger.WithFields(logrus.Fields{
		"round":   p.Round,
		"height":  block.Height(),
		"txs":     len(accepted),
		"dropped": len(dropped),
		"hash":    common.ShortHex(block.Hash),
	}).Debug("Candidate block")

	return block, dropped, nil
}
