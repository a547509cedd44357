// Package loader serves and fetches committed blocks, point to point, for
// catch-up and for audit tools.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/ashwinbangalore/irohaBG/src/net"
	"github.com/ashwinbangalore/irohaBG/src/peers"
	"github.com/sirupsen/logrus"
)

// MaxBlocksPerRequest caps the range served by one BlocksRequest.
const MaxBlocksPerRequest = 100

var (
	// ErrNotFound is returned when the requested height is beyond the
	// ledger of the serving peer.
	ErrNotFound = errors.New("block not found")
	// ErrTimeout is returned when a peer does not answer within the load
	// delay.
	ErrTimeout = errors.New("block request timed out")
)

// BlocksClient sends BlocksRequests. net.Transport implements it.
type BlocksClient interface {
	Blocks(target string, args *net.BlocksRequest, resp *net.BlocksResponse) error
}

// BlockReader is the part of the ledger store served to other peers.
type BlockReader interface {
	Height() uint64
	GetBlocks(from, to uint64) ([]*ledger.Block, error)
}

// Loader is both ends of the protocol.
type Loader struct {
	id        uint32
	client    BlocksClient
	store     BlockReader
	loadDelay time.Duration
	logger    *logrus.Entry
}

// New ...
func New(id uint32, client BlocksClient, store BlockReader, loadDelay time.Duration, logger *logrus.Entry) *Loader {
	return &Loader{
		id:        id,
		client:    client,
		store:     store,
		loadDelay: loadDelay,
		logger:    logger.WithField("component", "loader"),
	}
}

// RetrieveBlock fetches the block at height from peer.
func (l *Loader) RetrieveBlock(ctx context.Context, peer *peers.Peer, height uint64) (*ledger.Block, error) {
	blocks, err := l.RetrieveBlocks(ctx, peer, height, height)
	if err != nil {
		return nil, err
	}
	return blocks[0], nil
}

// RetrieveBlocks fetches the blocks in [from, to] from peer, in requests of
// at most MaxBlocksPerRequest blocks, each bounded by the load delay. It fails
// unless the peer returns every block of the range in height order. Block
// contents are not verified here.
func (l *Loader) RetrieveBlocks(ctx context.Context, peer *peers.Peer, from, to uint64) ([]*ledger.Block, error) {
	if to < from {
		return nil, fmt.Errorf("invalid range [%d, %d]", from, to)
	}

	// the range comes from peers, only the first request is preallocated
	size := to - from + 1
	if size > MaxBlocksPerRequest || size == 0 {
		size = MaxBlocksPerRequest
	}
	res := make([]*ledger.Block, 0, size)

	for next := from; next <= to; {
		last := next + MaxBlocksPerRequest - 1
		if last > to {
			last = to
		}

		blocks, err := l.request(ctx, peer, next, last)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			return nil, fmt.Errorf("height %d from %s: %w", next, peer.Moniker, ErrNotFound)
		}

		for _, b := range blocks {
			if b == nil || b.Height() != next || next > last {
				return nil, fmt.Errorf("unexpected block from %s at height %d", peer.Moniker, next)
			}
			res = append(res, b)
			next++
		}
	}

	return res, nil
}

func (l *Loader) request(ctx context.Context, peer *peers.Peer, from, to uint64) ([]*ledger.Block, error) {
	ctx, cancel := context.WithTimeout(ctx, l.loadDelay)
	defer cancel()

	type result struct {
		resp net.BlocksResponse
		err  error
	}
	resCh := make(chan result, 1)

	start := time.Now()
	go func() {
		var r result
		r.err = l.client.Blocks(peer.NetAddr, &net.BlocksRequest{FromID: l.id, From: from, To: to}, &r.resp)
		resCh <- r
	}()

	select {
	case r := <-resCh:
		l.logger.WithFields(logrus.Fields{
			"peer":     peer.Moniker,
			"from":     from,
			"to":       to,
			"blocks":   len(r.resp.Blocks),
			"duration": time.Since(start).Nanoseconds(),
		}).Debug("BlocksResponse")
		if r.err != nil {
			// errors cross the TCP transport as strings
			if r.err.Error() == ErrNotFound.Error() {
				return nil, fmt.Errorf("height %d from %s: %w", from, peer.Moniker, ErrNotFound)
			}
			return nil, r.err
		}
		return r.resp.Blocks, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", peer.Moniker, ErrTimeout)
		}
		return nil, ctx.Err()
	}
}

// ProcessBlocksRequest serves a BlocksRequest from the local ledger. The range
// is capped at MaxBlocksPerRequest blocks and at the local height.
func (l *Loader) ProcessBlocksRequest(req *net.BlocksRequest) (*net.BlocksResponse, error) {
	height := l.store.Height()

	if req.From == 0 || req.To < req.From {
		return nil, fmt.Errorf("invalid range [%d, %d]", req.From, req.To)
	}
	if req.From > height {
		return nil, ErrNotFound
	}

	to := req.To
	if to-req.From >= MaxBlocksPerRequest {
		to = req.From + MaxBlocksPerRequest - 1
	}

	blocks, err := l.store.GetBlocks(req.From, to)
	if err != nil {
		return nil, err
	}

	return &net.BlocksResponse{
		FromID: l.id,
		Blocks: blocks,
	}, nil
}
