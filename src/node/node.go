package node

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/ashwinbangalore/irohaBG/src/loader"
	"github.com/ashwinbangalore/irohaBG/src/metrics"
	"github.com/ashwinbangalore/irohaBG/src/net"
	"github.com/ashwinbangalore/irohaBG/src/ordering"
	"github.com/ashwinbangalore/irohaBG/src/pcs"
	"github.com/ashwinbangalore/irohaBG/src/peers"
	"github.com/ashwinbangalore/irohaBG/src/simulator"
	"github.com/ashwinbangalore/irohaBG/src/synchronizer"
	"github.com/ashwinbangalore/irohaBG/src/yac"
	"github.com/sirupsen/logrus"
)

// Node defines a ledger peer
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	validator *Validator
	peers     *peers.PeerSet
	store     ledger.Store

	trans net.Transport
	netCh <-chan net.RPC

	gate    *ordering.Gate
	service *ordering.Service // only on the ordering peer
	yac     *yac.Yac
	loader  *loader.Loader
	sync    *synchronizer.Synchronizer
	pcs     *pcs.PCS
	metrics *metrics.Metrics

	ctx        context.Context
	cancel     context.CancelFunc
	pcsDone    chan struct{}
	shutdownCh chan struct{}

	start time.Time
}

// NewNode is a factory method that returns a Node instance. The store must
// already hold the genesis block.
func NewNode(conf *Config,
	validator *Validator,
	peerSet *peers.PeerSet,
	store ledger.Store,
	trans net.Transport,
) *Node {
	logger := conf.Logger.WithFields(logrus.Fields{
		"this_id": validator.ID(),
		"moniker": validator.Moniker,
	})

	query := peers.NewStaticQuery(peerSet)
	m := metrics.New()
	provider := validator.Provider()

	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		conf:       conf,
		logger:     logger,
		validator:  validator,
		peers:      peerSet,
		store:      store,
		trans:      trans,
		netCh:      trans.Consumer(),
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		pcsDone:    make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}

	n.loader = loader.New(validator.ID(), trans, store, conf.LoadDelay, logger)
	n.sync = synchronizer.New(store, n.loader, query, validator.PublicKeyBytes(), m, logger)
	n.gate = ordering.NewGate(n, conf.ordering(), logger)

	observers := []pcs.RoundObserver{n.gate}

	if n.IsOrderingPeer() {
		// rounds are numbered from the clock so that a restarted ordering
		// peer never reuses a round number
		startRound := uint64(time.Now().UnixMilli())
		n.service = ordering.NewService(conf.ordering(), startRound, store.Height, n, m, logger)
		observers = append(observers, n.service)
	}

	n.yac = yac.New(query, provider, n, conf.VoteDelay, 0, m, logger)

	n.pcs = pcs.New(n.gate,
		simulator.New(store, provider, logger),
		n.yac,
		n.sync,
		observers,
		query,
		m,
		logger)

	return n
}

// IsOrderingPeer reports whether this node runs the ordering service: the
// first peer of the canonical peer order.
func (n *Node) IsOrderingPeer() bool {
	first := n.peers.First()
	return first != nil && bytes.Equal(first.PubKeyBytes(), n.validator.PublicKeyBytes())
}

// RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")
	go n.Run()
}

// Run processes RPCs in the background and executes the pipeline until
// Shutdown, or until the ledger store fails.
func (n *Node) Run() {
	// a node is only run once, and never after Shutdown
	if !n.casState(Initialised, Running) {
		return
	}
	defer close(n.pcsDone)

	n.start = time.Now()

	n.logger.WithFields(logrus.Fields{
		"height":   n.store.Height(),
		"peers":    n.peers.Len(),
		"ordering": n.IsOrderingPeer(),
	}).Info("Running")

	go n.trans.Listen()
	go n.doBackgroundWork()

	if err := n.pcs.Run(n.ctx); err != nil {
		n.logger.WithError(err).Error("Pipeline stopped")
		n.casState(Running, Failed)
	}
}

func (n *Node) doBackgroundWork() {
	for {
		select {
		case rpc := <-n.netCh:
			n.goFunc(func() {
				n.processRPC(rpc)
			})
		case <-n.shutdownCh:
			return
		}
	}
}

// SubmitTransaction hands a client transaction to the ordering gate.
func (n *Node) SubmitTransaction(tx *ledger.Transaction) error {
	return n.gate.Enqueue(tx)
}

// OnProposal subscribes to the Proposals accepted into simulation.
func (n *Node) OnProposal() (<-chan *ledger.Proposal, func()) {
	return n.pcs.OnProposal()
}

// OnCommit subscribes to the committed rounds.
func (n *Node) OnCommit() (<-chan pcs.Commit, func()) {
	return n.pcs.OnCommit()
}

// Shutdown shuts down the node
func (n *Node) Shutdown() {
	prev := n.swapState(Shutdown)
	if prev == Shutdown {
		return
	}

	n.logger.Debug("Shutdown")

	n.cancel()
	if prev == Running || prev == Failed {
		<-n.pcsDone
	}

	close(n.shutdownCh)

	// unblocks RPC handlers waiting to emit a decision
	n.yac.Close()
	if n.service != nil {
		n.service.Close()
	}

	n.waitRoutines()

	// transport and store are closed once the handlers are done with them
	n.trans.Close()

	if err := n.store.Close(); err != nil {
		n.logger.WithError(err).Error("Closing store")
	}
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	timeElapsed := time.Since(n.start)

	height := n.store.Height()

	var blocksPerSecond float64
	if timeElapsed.Seconds() > 0 {
		blocksPerSecond = float64(height) / timeElapsed.Seconds()
	}

	queued := "-"
	if n.service != nil {
		q, _, _ := n.service.Stats()
		queued = strconv.Itoa(q)
	}

	leader := ""
	if first := n.peers.First(); first != nil {
		leader = first.Moniker
	}

	s := map[string]string{
		"height":               strconv.FormatUint(height, 10),
		"top_hash":             common.EncodeToString(n.store.TopHash()),
		"round":                strconv.FormatUint(n.yac.Round(), 10),
		"pending_transactions": strconv.Itoa(n.gate.Pending()),
		"queued_transactions":  queued,
		"num_peers":            strconv.Itoa(n.peers.Len()),
		"ordering_peer":        leader,
		"blocks_per_second":    strconv.FormatFloat(blocksPerSecond, 'f', 2, 64),
		"id":                   fmt.Sprint(n.validator.ID()),
		"state":                n.getState().String(),
		"moniker":              n.validator.Moniker,
	}
	return s
}

// GetBlock returns the committed block at height
func (n *Node) GetBlock(height uint64) (*ledger.Block, error) {
	return n.store.GetBlock(height)
}

// GetBlocks returns the committed blocks in [from, to], at most
// loader.MaxBlocksPerRequest of them.
func (n *Node) GetBlocks(from, to uint64) ([]*ledger.Block, error) {
	resp, err := n.loader.ProcessBlocksRequest(&net.BlocksRequest{From: from, To: to})
	if err != nil {
		return nil, err
	}
	return resp.Blocks, nil
}

// Height returns the height of the local ledger
func (n *Node) Height() uint64 {
	return n.store.Height()
}

// ID returns the validator ID
func (n *Node) ID() uint32 {
	return n.validator.ID()
}

// GetPeers returns the peers
func (n *Node) GetPeers() []*peers.Peer {
	return n.peers.Peers
}

// Metrics returns the node's Prometheus collectors
func (n *Node) Metrics() *metrics.Metrics {
	return n.metrics
}

// State returns the node's state
func (n *Node) State() State {
	return n.getState()
}
