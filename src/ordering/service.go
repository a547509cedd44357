package ordering

import (
	"errors"
	"sync"
	"time"

	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyQueued is returned for a transaction whose identity is already
// pending.
var ErrAlreadyQueued = errors.New("transaction already queued")

// ProposalBroadcaster delivers a Proposal to every peer, the local one
// included. It must not block on unreachable peers.
type ProposalBroadcaster interface {
	BroadcastProposal(p *ledger.Proposal)
}

// Metrics receives counters from the Service. May be nil.
type Metrics interface {
	ProposalCut(txs int)
}

// queuedTx is a transaction waiting for a Proposal. arrived is kept across
// cuts, the zero value marks a requeued transaction, which is due immediately.
type queuedTx struct {
	tx      *ledger.Transaction
	arrived time.Time
}

// Service batches transactions into Proposals on the ordering peer.
type Service struct {
	sync.Mutex

	conf    Config
	height  func() uint64
	network ProposalBroadcaster
	metrics Metrics
	logger  *logrus.Entry

	queue  []queuedTx
	queued map[string]bool // queued or in flight
	armed  bool

	inflight *ledger.Proposal
	round    uint64

	timer      *BatchTimer
	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// NewService creates a Service whose first Proposal is for round startRound.
// height returns the local ledger height; Proposals are cut for the next one.
func NewService(conf Config,
	startRound uint64,
	height func() uint64,
	network ProposalBroadcaster,
	metrics Metrics,
	logger *logrus.Entry,
) *Service {
	if conf.MaxProposalSize <= 0 {
		conf.MaxProposalSize = DefaultConfig().MaxProposalSize
	}

	s := &Service{
		conf:       conf,
		height:     height,
		network:    network,
		metrics:    metrics,
		logger:     logger.WithField("component", "ordering-service"),
		queued:     make(map[string]bool),
		round:      startRound,
		timer:      NewRealBatchTimer(),
		shutdownCh: make(chan struct{}),
	}

	go s.timer.Run()
	go s.loop()

	return s
}

func (s *Service) loop() {
	for {
		select {
		case <-s.timer.TickCh():
			s.Lock()
			s.armed = false
			p := s.maybeCut()
			s.Unlock()
			s.broadcast(p)
		case <-s.shutdownCh:
			return
		}
	}
}

// Enqueue adds transactions to the queue. The result holds one error, or
// nil, per transaction.
func (s *Service) Enqueue(txs []*ledger.Transaction) []error {
	errs := make([]error, len(txs))

	s.Lock()

	now := time.Now()
	for i, tx := range txs {
		if err := tx.WellFormed(); err != nil {
			errs[i] = err
			continue
		}
		key := tx.Hex()
		if s.queued[key] {
			errs[i] = ErrAlreadyQueued
			continue
		}
		s.queue = append(s.queue, queuedTx{tx: tx, arrived: now})
		s.queued[key] = true
	}

	s.logger.WithFields(logrus.Fields{
		"txs":   len(txs),
		"queue": len(s.queue),
	}).Debug("Enqueue")

	p := s.maybeCut()
	s.Unlock()

	s.broadcast(p)

	return errs
}

// maybeCut returns a new Proposal when one is due, arming the timer
// otherwise. Must be called with the lock held.
func (s *Service) maybeCut() *ledger.Proposal {
	if s.inflight != nil || len(s.queue) == 0 {
		return nil
	}

	// the head arrived first: requeued transactions go back to the head
	elapsed := time.Since(s.queue[0].arrived)
	if len(s.queue) < s.conf.MaxProposalSize && elapsed < s.conf.ProposalDelay {
		if !s.armed {
			s.armed = true
			s.timer.Reset(s.conf.ProposalDelay - elapsed)
		}
		return nil
	}

	n := s.conf.MaxProposalSize
	if len(s.queue) < n {
		n = len(s.queue)
	}

	txs := make([]*ledger.Transaction, n)
	for i, q := range s.queue[:n] {
		txs[i] = q.tx
	}
	s.queue = append([]queuedTx{}, s.queue[n:]...)

	if s.armed {
		s.armed = false
		s.timer.Stop()
	}

	p := ledger.NewProposal(s.height()+1, s.round, time.Now().UnixMilli(), txs)
	s.inflight = p

	s.logger.WithFields(logrus.Fields{
		"round":  p.Round,
		"height": p.Height,
		"txs":    len(txs),
	}).Debug("Cut proposal")

	if s.metrics != nil {
		s.metrics.ProposalCut(len(txs))
	}

	return p
}

func (s *Service) broadcast(p *ledger.Proposal) {
	if p != nil {
		s.network.BroadcastProposal(p)
	}
}

// RoundDecided releases the next round. block is the block committed in round,
// or nil if the round was rejected. On a reject the in-flight transactions
// go back to the head of the queue; on a commit, transactions of the block
// are forgotten, whichever round carried them.
func (s *Service) RoundDecided(round uint64, block *ledger.Block) {
	s.Lock()

	committed := make(map[string]bool)
	if block != nil {
		for _, tx := range block.Transactions() {
			committed[tx.Hex()] = true
		}
	}

	if s.inflight != nil && s.inflight.Round == round {
		if block == nil {
			requeue := make([]queuedTx, 0, len(s.inflight.Transactions)+len(s.queue))
			for _, tx := range s.inflight.Transactions {
				requeue = append(requeue, queuedTx{tx: tx})
			}
			s.queue = append(requeue, s.queue...)

			s.logger.WithFields(logrus.Fields{
				"round": round,
				"txs":   len(s.inflight.Transactions),
			}).Debug("Requeue rejected proposal")
		} else {
			// transactions the simulator dropped are not retried
			for _, tx := range s.inflight.Transactions {
				delete(s.queued, tx.Hex())
			}
		}
		s.inflight = nil
	}

	if round >= s.round {
		s.round = round + 1
	}

	if len(committed) > 0 {
		queue := s.queue[:0]
		for _, q := range s.queue {
			if committed[q.tx.Hex()] {
				delete(s.queued, q.tx.Hex())
				continue
			}
			queue = append(queue, q)
		}
		s.queue = queue
	}

	p := s.maybeCut()
	s.Unlock()

	s.broadcast(p)
}

// Stats ...
func (s *Service) Stats() (queued int, round uint64, inflight bool) {
	s.Lock()
	defer s.Unlock()
	return len(s.queue), s.round, s.inflight != nil
}

// Close stops the timer.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.shutdownCh)
		s.timer.Shutdown()
	})
}
