// Package synchronizer applies consensus decisions to the ledger store and
// brings a lagging peer up to the agreed height.
package synchronizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto"
	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/ashwinbangalore/irohaBG/src/peers"
	"github.com/ashwinbangalore/irohaBG/src/yac"
	"github.com/sirupsen/logrus"
)

// ErrCatchUpExhausted is returned when every peer of the retry list failed to
// provide a verifiable range of blocks.
var ErrCatchUpExhausted = errors.New("catch-up failed against every peer")

// ConsistencyError describes blocks from a peer that do not verify. The peer
// is not trusted any further for the current operation.
type ConsistencyError struct {
	Peer   string
	Height uint64
	Reason string
}

func (e ConsistencyError) Error() string {
	return fmt.Sprintf("inconsistent block %d from %s: %s", e.Height, e.Peer, e.Reason)
}

// BlockLoader fetches committed blocks from a peer.
type BlockLoader interface {
	RetrieveBlocks(ctx context.Context, peer *peers.Peer, from, to uint64) ([]*ledger.Block, error)
}

// Metrics receives counters from the Synchronizer. May be nil.
type Metrics interface {
	BlocksApplied(n int, height uint64)
	CatchUp(blocks int, err error)
}

// Synchronizer is the single writer of the ledger store.
type Synchronizer struct {
	store   ledger.Store
	loader  BlockLoader
	peers   peers.Query
	self    []byte
	metrics Metrics
	logger  *logrus.Entry
}

// New ...
func New(store ledger.Store,
	loader BlockLoader,
	query peers.Query,
	self []byte,
	metrics Metrics,
	logger *logrus.Entry,
) *Synchronizer {
	return &Synchronizer{
		store:   store,
		loader:  loader,
		peers:   query,
		self:    self,
		metrics: metrics,
		logger:  logger.WithField("component", "sync"),
	}
}

// Process applies a decision and returns the blocks it appended, in height
// order. A Reject, or a Commit at or below the local height, changes nothing.
// When the committed block is missing locally, or the ledger is behind it,
// the missing range is loaded from the peers that voted for it, trying them in
// vote order.
func (s *Synchronizer) Process(ctx context.Context, d yac.Decision) ([]*ledger.Block, error) {
	if d.Outcome != yac.Commit {
		return nil, nil
	}

	height := s.store.Height()

	if d.Height <= height {
		s.logger.WithFields(logrus.Fields{
			"round":  d.Round,
			"height": d.Height,
			"ledger": height,
		}).Debug("Stale commit")
		return nil, nil
	}

	if d.Block != nil && !bytes.Equal(d.Block.Hash, d.Hash) {
		return nil, fmt.Errorf("decision block %s does not match agreed hash %s",
			d.Block.Hex(), d.HashHex())
	}

	var blocks []*ledger.Block

	if d.Block == nil || d.Height > height+1 {
		last, lastHash := d.Height, d.Hash
		if d.Block != nil {
			last, lastHash = d.Height-1, d.Block.PrevHash()
		}

		fetched, err := s.fetch(ctx, height, last, lastHash, s.retryList(d.Voters()))
		s.countCatchUp(len(fetched), err)
		if err != nil {
			return nil, err
		}
		blocks = fetched
	}

	if d.Block != nil {
		blocks = append(blocks, d.Block)
	}

	return s.apply(blocks)
}

// CatchUp loads and applies the blocks up to target from sources, for a peer
// that learns it is behind before any decision says so. There is no agreed
// hash to check the range against, so only linkage and signatures are
// verified.
func (s *Synchronizer) CatchUp(ctx context.Context, target uint64, sources []*peers.Peer) ([]*ledger.Block, error) {
	height := s.store.Height()
	if target <= height {
		return nil, nil
	}

	blocks, err := s.fetch(ctx, height, target, nil, s.excludeSelf(sources))
	s.countCatchUp(len(blocks), err)
	if err != nil {
		return nil, err
	}

	return s.apply(blocks)
}

// fetch loads (height, last] from the first source that returns a verifiable
// range. When lastHash is set, the range must end on it.
func (s *Synchronizer) fetch(ctx context.Context, height, last uint64, lastHash []byte, sources []*peers.Peer) ([]*ledger.Block, error) {
	if last <= height {
		return nil, nil
	}

	var lastErr error

	for _, p := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger := s.logger.WithFields(logrus.Fields{
			"peer": p.Moniker,
			"from": height + 1,
			"to":   last,
		})
		logger.Debug("Catching up")

		blocks, err := s.loader.RetrieveBlocks(ctx, p, height+1, last)
		if err != nil {
			logger.WithError(err).Warn("Loading blocks")
			lastErr = err
			continue
		}

		if err := s.verify(p, blocks, lastHash); err != nil {
			logger.WithError(err).Warn("Rejecting blocks")
			lastErr = err
			continue
		}

		return blocks, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no peer to load from")
	}
	return nil, fmt.Errorf("%w: %v", ErrCatchUpExhausted, lastErr)
}

// verify checks that blocks extend the local ledger, are hashed and signed
// correctly, and end on lastHash when it is set.
func (s *Synchronizer) verify(p *peers.Peer, blocks []*ledger.Block, lastHash []byte) error {
	ps := s.peers.CurrentPeers()

	prev := s.store.TopHash()
	if s.store.Height() == 0 {
		prev = crypto.ZeroHash()
	}

	for _, b := range blocks {
		inconsistent := func(reason string) error {
			return ConsistencyError{Peer: p.Moniker, Height: b.Height(), Reason: reason}
		}

		if err := b.VerifyHash(); err != nil {
			return inconsistent(err.Error())
		}
		if !bytes.Equal(b.PrevHash(), prev) {
			return inconsistent(fmt.Sprintf("prev hash %s does not link to %s",
				common.ShortHex(b.PrevHash()), common.ShortHex(prev)))
		}
		if b.Height() != ledger.GenesisHeight {
			if err := b.VerifySignatures(ps); err != nil {
				return inconsistent(err.Error())
			}
		}
		prev = b.Hash
	}

	if lastHash != nil && !bytes.Equal(prev, lastHash) {
		return ConsistencyError{
			Peer:   p.Moniker,
			Height: blocks[len(blocks)-1].Height(),
			Reason: fmt.Sprintf("range ends on %s, agreed %s", common.ShortHex(prev), common.ShortHex(lastHash)),
		}
	}

	return nil
}

func (s *Synchronizer) apply(blocks []*ledger.Block) ([]*ledger.Block, error) {
	applied := make([]*ledger.Block, 0, len(blocks))

	for _, b := range blocks {
		if err := s.store.ApplyBlock(b); err != nil {
			if common.IsStore(err, common.KeyAlreadyExists) {
				continue
			}
			if !ledger.IsStorage(err) {
				err = ledger.StorageError{Op: fmt.Sprintf("apply block %d", b.Height()), Err: err}
			}
			s.logger.WithError(err).Error("Applying block")
			return applied, err
		}

		applied = append(applied, b)

		s.logger.WithFields(logrus.Fields{
			"height": b.Height(),
			"txs":    b.Body.TxsNumber,
			"hash":   common.ShortHex(b.Hash),
		}).Info("Committed block")
	}

	if s.metrics != nil && len(applied) > 0 {
		s.metrics.BlocksApplied(len(applied), s.store.Height())
	}

	return applied, nil
}

// retryList maps voters to peers, in vote order, without the local peer.
func (s *Synchronizer) retryList(voters [][]byte) []*peers.Peer {
	ps := s.peers.CurrentPeers()

	res := []*peers.Peer{}
	for _, v := range voters {
		if p, ok := ps.ByPubKeyBytes(v); ok {
			res = append(res, p)
		}
	}
	return s.excludeSelf(res)
}

func (s *Synchronizer) excludeSelf(list []*peers.Peer) []*peers.Peer {
	res := make([]*peers.Peer, 0, len(list))
	for _, p := range list {
		if !bytes.Equal(p.PubKeyBytes(), s.self) {
			res = append(res, p)
		}
	}
	return res
}

func (s *Synchronizer) countCatchUp(blocks int, err error) {
	if s.metrics != nil {
		s.metrics.CatchUp(blocks, err)
	}
}
