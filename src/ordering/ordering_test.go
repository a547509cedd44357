package ordering

import (
	"errors"
	"testing"
	"time"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto"
	"github.com/ashwinbangalore/irohaBG/src/crypto/keys"
	"github.com/ashwinbangalore/irohaBG/src/ledger"
)

type chanBroadcaster chan *ledger.Proposal

func (c chanBroadcaster) BroadcastProposal(p *ledger.Proposal) {
	c <- p
}

func newProvider(t *testing.T) crypto.Provider {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	return crypto.NewECDSAProvider(key)
}

func makeTxs(t *testing.T, n int) []*ledger.Transaction {
	admin := newProvider(t)
	txs := []*ledger.Transaction{}
	for i := 0; i < n; i++ {
		txs = append(txs, ledger.NewTestTransaction(t, admin, int64(i+1),
			ledger.AddAssetQuantity(ledger.TestAdminID, ledger.TestAssetID, "1.00")))
	}
	return txs
}

func newTestService(t *testing.T, maxSize int, delay time.Duration) (*Service, chanBroadcaster) {
	out := make(chanBroadcaster, 16)
	s := NewService(Config{MaxProposalSize: maxSize, ProposalDelay: delay},
		1,
		func() uint64 { return 1 },
		out,
		nil,
		common.NewTestEntry(t, "ordering"))
	t.Cleanup(s.Close)
	return s, out
}

func expectProposal(t *testing.T, out chanBroadcaster, timeout time.Duration) *ledger.Proposal {
	t.Helper()
	select {
	case p := <-out:
		return p
	case <-time.After(timeout):
		t.Fatalf("no proposal after %v", timeout)
	}
	return nil
}

func expectNoProposal(t *testing.T, out chanBroadcaster, wait time.Duration) {
	t.Helper()
	select {
	case p := <-out:
		t.Fatalf("unexpected proposal for round %d", p.Round)
	case <-time.After(wait):
	}
}

func TestServiceCutsOnSize(t *testing.T) {
	s, out := newTestService(t, 2, time.Minute)
	txs := makeTxs(t, 2)

	for _, err := range s.Enqueue(txs) {
		if err != nil {
			t.Fatal(err)
		}
	}

	p := expectProposal(t, out, time.Second)
	if p.Height != 2 || p.Round != 1 {
		t.Fatalf("proposal should be for height 2 round 1, not %d/%d", p.Height, p.Round)
	}
	if len(p.Transactions) != 2 || p.Transactions[0].Hex() != txs[0].Hex() {
		t.Fatalf("proposal should hold the 2 transactions in order")
	}
}

func TestServiceCutsOnDelay(t *testing.T) {
	s, out := newTestService(t, 10, 100*time.Millisecond)
	txs := makeTxs(t, 3)

	start := time.Now()
	s.Enqueue(txs[:1])
	time.Sleep(20 * time.Millisecond)
	s.Enqueue(txs[1:])

	p := expectProposal(t, out, 2*time.Second)
	if time.Since(start) < 100*time.Millisecond {
		t.Fatalf("proposal cut before the delay")
	}
	if len(p.Transactions) != 3 {
		t.Fatalf("proposal should hold 3 transactions, not %d", len(p.Transactions))
	}
	expectNoProposal(t, out, 200*time.Millisecond)
}

func TestServiceDuplicates(t *testing.T) {
	s, _ := newTestService(t, 10, time.Minute)
	txs := makeTxs(t, 1)

	if errs := s.Enqueue(txs); errs[0] != nil {
		t.Fatal(errs[0])
	}
	if errs := s.Enqueue(txs); !errors.Is(errs[0], ErrAlreadyQueued) {
		t.Fatalf("second enqueue should fail with ErrAlreadyQueued, got %v", errs[0])
	}

	unsigned := ledger.NewTransaction(ledger.TestAdminID, 9,
		ledger.AddAssetQuantity(ledger.TestAdminID, ledger.TestAssetID, "1.00"))
	if errs := s.Enqueue([]*ledger.Transaction{unsigned}); errs[0] == nil {
		t.Fatalf("unsigned transaction should be refused")
	}
}

func TestServiceLockstepAndRequeue(t *testing.T) {
	s, out := newTestService(t, 2, 50*time.Millisecond)
	txs := makeTxs(t, 3)

	s.Enqueue(txs)

	first := expectProposal(t, out, time.Second)
	if len(first.Transactions) != 2 {
		t.Fatalf("first proposal should be full")
	}
	// round 1 is undecided, the third transaction waits
	expectNoProposal(t, out, 200*time.Millisecond)

	s.RoundDecided(first.Round, nil)

	second := expectProposal(t, out, time.Second)
	if second.Round != first.Round+1 {
		t.Fatalf("second proposal should be for round %d", first.Round+1)
	}
	if len(second.Transactions) != 2 ||
		second.Transactions[0].Hex() != txs[0].Hex() ||
		second.Transactions[1].Hex() != txs[1].Hex() {
		t.Fatalf("rejected transactions should be proposed again first")
	}

	block, err := ledger.NewBlock(2, crypto.ZeroHash(), second.Transactions, second.CreatedTime)
	if err != nil {
		t.Fatal(err)
	}
	s.RoundDecided(second.Round, block)

	third := expectProposal(t, out, time.Second)
	if len(third.Transactions) != 1 || third.Transactions[0].Hex() != txs[2].Hex() {
		t.Fatalf("third proposal should hold the remaining transaction")
	}

	// committed transactions can be submitted again, and will fail in the
	// simulator
	if errs := s.Enqueue(txs[:1]); errs[0] != nil {
		t.Fatalf("committed transaction should no longer be queued: %v", errs[0])
	}
}

func TestServiceKeepsArrivalAcrossCuts(t *testing.T) {
	delay := 300 * time.Millisecond
	s, out := newTestService(t, 2, delay)
	txs := makeTxs(t, 3)

	s.Enqueue(txs)
	first := expectProposal(t, out, time.Second)

	// the third transaction is overdue by the time its round is free
	time.Sleep(delay + 100*time.Millisecond)

	block, err := ledger.NewBlock(2, crypto.ZeroHash(), first.Transactions, first.CreatedTime)
	if err != nil {
		t.Fatal(err)
	}
	decided := time.Now()
	s.RoundDecided(first.Round, block)

	second := expectProposal(t, out, time.Second)
	if waited := time.Since(decided); waited > delay/2 {
		t.Fatalf("overdue transaction waited another %v", waited)
	}
	if len(second.Transactions) != 1 || second.Transactions[0].Hex() != txs[2].Hex() {
		t.Fatalf("second proposal should hold the remaining transaction")
	}
}

type recordingForwarder struct {
	txs []*ledger.Transaction
	err error
}

func (f *recordingForwarder) ForwardTransactions(txs []*ledger.Transaction) []error {
	f.txs = append(f.txs, txs...)
	return []error{f.err}
}

func TestGateEnqueue(t *testing.T) {
	fwd := &recordingForwarder{}
	g := NewGate(fwd, DefaultConfig(), common.NewTestEntry(t, "gate"))
	txs := makeTxs(t, 2)

	if err := g.Enqueue(txs[0]); err != nil {
		t.Fatal(err)
	}
	if err := g.Enqueue(txs[0]); !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("duplicate should fail with ErrAlreadyQueued, got %v", err)
	}
	if len(fwd.txs) != 1 {
		t.Fatalf("only one transaction should be forwarded")
	}

	fwd.err = errors.New("unreachable")
	if err := g.Enqueue(txs[1]); err == nil {
		t.Fatalf("forwarding error should be returned")
	}
	if g.Pending() != 1 {
		t.Fatalf("failed transaction should not stay pending")
	}

	// once decided, the identity is free again
	p := ledger.NewProposal(2, 1, 0, txs[:1])
	g.OnProposal(p)
	<-g.Proposals()
	g.RoundDecided(1, nil)
	if g.Pending() != 0 {
		t.Fatalf("decided transaction should not be pending")
	}
}

func TestGateReleasesInRoundOrder(t *testing.T) {
	g := NewGate(&recordingForwarder{}, DefaultConfig(), common.NewTestEntry(t, "gate"))

	p := func(round uint64) *ledger.Proposal {
		return ledger.NewProposal(2, round, 0, nil)
	}

	g.OnProposal(p(2))
	g.OnProposal(p(1))

	// round 2 arrived first, round 1 is behind it and dropped
	first := <-g.Proposals()
	if first.Round != 2 {
		t.Fatalf("first released should be round 2, not %d", first.Round)
	}

	select {
	case p := <-g.Proposals():
		t.Fatalf("round %d released before round 2 was decided", p.Round)
	default:
	}

	g.OnProposal(p(4))
	g.OnProposal(p(3))
	g.RoundDecided(2, nil)

	next := <-g.Proposals()
	if next.Round != 3 {
		t.Fatalf("next released should be round 3, not %d", next.Round)
	}

	g.OnProposal(p(3))
	g.RoundDecided(3, nil)
	if r := (<-g.Proposals()).Round; r != 4 {
		t.Fatalf("next released should be round 4, not %d", r)
	}

	g.OnProposal(p(2))
	select {
	case p := <-g.Proposals():
		t.Fatalf("stale round %d should be dropped", p.Round)
	default:
	}
}
