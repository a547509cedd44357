package ordering

import (
	"sync"
	"time"

	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/sirupsen/logrus"
)

// Forwarder delivers transactions to the ordering Service, wherever it runs.
type Forwarder interface {
	ForwardTransactions(txs []*ledger.Transaction) []error
}

// Gate is the per-peer end of the ordering pipeline.
type Gate struct {
	sync.Mutex

	forwarder Forwarder
	expiry    time.Duration
	logger    *logrus.Entry

	// pending holds the identities of transactions submitted through this
	// Gate and not yet decided, with their submission time.
	pending map[string]time.Time

	proposals map[uint64]*ledger.Proposal
	// next is the lowest round that can still be released.
	next uint64
	// current is the released Proposal awaiting its decision.
	current *ledger.Proposal

	proposalCh chan *ledger.Proposal
}

// NewGate ...
func NewGate(forwarder Forwarder, conf Config, logger *logrus.Entry) *Gate {
	expiry := conf.PendingExpiry
	if expiry <= 0 {
		expiry = DefaultConfig().PendingExpiry
	}

	return &Gate{
		forwarder:  forwarder,
		expiry:     expiry,
		logger:     logger.WithField("component", "ordering-gate"),
		pending:    make(map[string]time.Time),
		proposals:  make(map[uint64]*ledger.Proposal),
		proposalCh: make(chan *ledger.Proposal, 1),
	}
}

// Enqueue submits a transaction for ordering. Only its structure is checked
// here. A transaction whose identity is still pending is refused with
// ErrAlreadyQueued.
func (g *Gate) Enqueue(tx *ledger.Transaction) error {
	if err := tx.WellFormed(); err != nil {
		return ledger.ValidationError{TxHash: tx.Hex(), Reason: err.Error()}
	}

	key := tx.Hex()

	g.Lock()
	g.expire()
	if _, ok := g.pending[key]; ok {
		g.Unlock()
		return ErrAlreadyQueued
	}
	g.pending[key] = time.Now()
	g.Unlock()

	errs := g.forwarder.ForwardTransactions([]*ledger.Transaction{tx})

	var err error
	if len(errs) > 0 {
		err = errs[0]
	}
	if err != nil {
		g.Lock()
		delete(g.pending, key)
		g.Unlock()

		g.logger.WithError(err).WithField("tx", key).Debug("Forwarding transaction")
		return err
	}

	return nil
}

// expire drops pending identities older than the expiry. Must be called with
// the lock held.
func (g *Gate) expire() {
	for k, t := range g.pending {
		if time.Since(t) > g.expiry {
			delete(g.pending, k)
		}
	}
}

// OnProposal buffers a Proposal received from the ordering Service. Proposals
// for rounds that cannot be released any more are dropped.
func (g *Gate) OnProposal(p *ledger.Proposal) {
	g.Lock()
	defer g.Unlock()

	if p.Round < g.next {
		g.logger.WithFields(logrus.Fields{
			"round": p.Round,
			"next":  g.next,
		}).Debug("Dropping stale proposal")
		return
	}
	if _, ok := g.proposals[p.Round]; ok {
		return
	}
	if g.current != nil && g.current.Round == p.Round {
		return
	}
	g.proposals[p.Round] = p

	g.release()
}

// release hands the lowest buffered Proposal to the pipeline if no Proposal is
// awaiting a decision. The Service only cuts round R+1 after R is decided, so
// a gap in the buffered rounds means the missing round was decided without
// this peer. Must be called with the lock held.
func (g *Gate) release() {
	if g.current != nil || len(g.proposals) == 0 {
		return
	}

	var lowest *ledger.Proposal
	for r, p := range g.proposals {
		if lowest == nil || r < lowest.Round {
			lowest = p
		}
	}
	delete(g.proposals, lowest.Round)

	g.current = lowest
	g.next = lowest.Round

	// a released Proposal still unread was decided without being simulated
	select {
	case <-g.proposalCh:
	default:
	}
	g.proposalCh <- lowest
}

// Proposals is the stream of Proposals, strictly in round order.
func (g *Gate) Proposals() <-chan *ledger.Proposal {
	return g.proposalCh
}

// RoundDecided ends round and releases the next Proposal. block is the block
// committed in round, or nil on a reject.
func (g *Gate) RoundDecided(round uint64, block *ledger.Block) {
	g.Lock()
	defer g.Unlock()

	if block != nil {
		for _, tx := range block.Transactions() {
			delete(g.pending, tx.Hex())
		}
	}

	if round < g.next {
		return
	}

	if g.current != nil && g.current.Round <= round {
		for _, tx := range g.current.Transactions {
			delete(g.pending, tx.Hex())
		}
		g.current = nil
	}

	for r := range g.proposals {
		if r <= round {
			delete(g.proposals, r)
		}
	}
	g.next = round + 1

	g.release()
}

// Pending returns the number of transactions submitted through this Gate and
// not yet decided.
func (g *Gate) Pending() int {
	g.Lock()
	defer g.Unlock()
	return len(g.pending)
}
