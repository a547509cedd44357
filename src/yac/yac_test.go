package yac

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto"
	"github.com/ashwinbangalore/irohaBG/src/crypto/keys"
	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/ashwinbangalore/irohaBG/src/peers"
)

// testNet delivers broadcasts to every other gate asynchronously.
// Nothing is delivered until ready is closed.
type testNet struct {
	sync.Mutex
	gates map[string]*Yac
	ready chan struct{}
}

type testBroadcaster struct {
	net  *testNet
	self string
}

func (b *testBroadcaster) others() []*Yac {
	b.net.Lock()
	defer b.net.Unlock()
	res := []*Yac{}
	for k, g := range b.net.gates {
		if k != b.self {
			res = append(res, g)
		}
	}
	return res
}

func (b *testBroadcaster) BroadcastVote(v *Vote) {
	for _, g := range b.others() {
		go func(g *Yac) {
			<-b.net.ready
			g.OnVote(*v)
		}(g)
	}
}

func (b *testBroadcaster) BroadcastCommit(votes []Vote) {
	for _, g := range b.others() {
		go func(g *Yac) {
			<-b.net.ready
			g.OnCommit(votes)
		}(g)
	}
}

type silentBroadcaster struct{}

func (silentBroadcaster) BroadcastVote(v *Vote)        {}
func (silentBroadcaster) BroadcastCommit(votes []Vote) {}

func initProviders(t *testing.T, n int) ([]*crypto.ECDSAProvider, *peers.PeerSet) {
	providers := []*crypto.ECDSAProvider{}
	ps := []*peers.Peer{}
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatal(err)
		}
		providers = append(providers, crypto.NewECDSAProvider(key))
		ps = append(ps, peers.NewPeer(
			keys.PublicKeyHex(&key.PublicKey),
			fmt.Sprintf("addr%d", i),
			fmt.Sprintf("peer%d", i),
		))
	}
	return providers, peers.NewPeerSet(ps)
}

func initGates(t *testing.T, n int, voteDelay time.Duration) ([]*Yac, func()) {
	providers, ps := initProviders(t, n)
	net := &testNet{
		gates: make(map[string]*Yac),
		ready: make(chan struct{}),
	}

	gates := []*Yac{}
	for i, p := range providers {
		key := common.EncodeToString(p.PublicKey())
		g := New(peers.NewStaticQuery(ps),
			p,
			&testBroadcaster{net: net, self: key},
			voteDelay,
			1,
			nil,
			common.NewTestEntry(t, fmt.Sprintf("yac%d", i)))
		net.gates[key] = g
		gates = append(gates, g)
	}

	t.Cleanup(func() {
		for _, g := range gates {
			g.Close()
		}
	})

	return gates, func() { close(net.ready) }
}

func testBlock(t *testing.T, createdTime int64) *ledger.Block {
	b, err := ledger.NewBlock(2, crypto.ZeroHash(), nil, createdTime)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func waitDecision(t *testing.T, g *Yac, timeout time.Duration) Decision {
	t.Helper()
	select {
	case d := <-g.Decisions():
		return d
	case <-time.After(timeout):
		t.Fatalf("no decision after %v", timeout)
	}
	return Decision{}
}

func TestVoteSignature(t *testing.T) {
	providers, _ := initProviders(t, 1)
	block := testBlock(t, 10)

	v, err := NewVote(3, 2, block.Hash, providers[0])
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Verify(); err != nil {
		t.Fatalf("vote should verify: %v", err)
	}

	v.Round = 4
	if err := v.Verify(); err == nil {
		t.Fatalf("changing the round should invalidate the signature")
	}
}

func TestRoundTable(t *testing.T) {
	providers, ps := initProviders(t, 4)
	a, b := testBlock(t, 1), testBlock(t, 2)

	vote := func(i int, round uint64, block *ledger.Block) (int, Vote) {
		v, err := NewVote(round, 2, block.Hash, providers[i])
		if err != nil {
			t.Fatal(err)
		}
		idx, _ := ps.Index(providers[i].PublicKey())
		return idx, *v
	}

	table := NewRoundTable(ps.Len(), ps.SuperMajority())

	if s := table.Add(vote(0, 1, a)); s != Added {
		t.Fatalf("first vote should be added")
	}
	if s := table.Add(vote(0, 1, a)); s != Duplicate {
		t.Fatalf("same vote twice should be a duplicate")
	}
	if s := table.Add(vote(0, 1, b)); s != Equivocation {
		t.Fatalf("second hash from the same peer should be an equivocation")
	}
	table.Add(vote(1, 1, a))

	if res, _ := table.Evaluate(1); res != Pending {
		t.Fatalf("2 of 4 votes should be pending, not %v", res)
	}

	table.Add(vote(2, 1, a))
	res, hash := table.Evaluate(1)
	if res != Agreed || hash != a.Hex() {
		t.Fatalf("3 of 4 votes should agree on a")
	}
	if votes := table.Votes(1, hash); len(votes) != 3 {
		t.Fatalf("should have 3 confirming votes, not %d", len(votes))
	}

	// 2 against 2 can never reach 3
	table.Add(vote(0, 2, a))
	table.Add(vote(1, 2, a))
	table.Add(vote(2, 2, b))
	if res, _ := table.Evaluate(2); res != Pending {
		t.Fatalf("2-1 with one vote missing should be pending")
	}
	table.Add(vote(3, 2, b))
	if res, _ := table.Evaluate(2); res != Unreachable {
		t.Fatalf("2-2 should be unreachable")
	}

	table.Evict(1)
	if table.Len() != 1 || table.VoterCount(1) != 0 {
		t.Fatalf("round 1 should be evicted")
	}
}

func TestCommit(t *testing.T) {
	gates, release := initGates(t, 4, 5*time.Second)
	block := testBlock(t, 10)

	for _, g := range gates {
		if err := g.Vote(1, block); err != nil {
			t.Fatal(err)
		}
	}
	release()

	for i, g := range gates {
		d := waitDecision(t, g, 3*time.Second)
		if d.Outcome != Commit {
			t.Fatalf("gate %d: outcome should be Commit, not %v", i, d.Outcome)
		}
		if d.Round != 1 || d.Height != 2 || d.HashHex() != block.Hex() {
			t.Fatalf("gate %d: wrong decision %d/%d/%s", i, d.Round, d.Height, d.HashHex())
		}
		if len(d.Votes) < 3 {
			t.Fatalf("gate %d: commit should carry at least 3 votes", i)
		}
		if d.Block == nil {
			t.Fatalf("gate %d: commit should carry the local candidate", i)
		}
		if g.Round() != 2 {
			t.Fatalf("gate %d: next round should be 2", i)
		}
	}
}

func TestSplitVoteRejectsEarly(t *testing.T) {
	gates, release := initGates(t, 4, 30*time.Second)
	a, b := testBlock(t, 1), testBlock(t, 2)

	for i, g := range gates {
		block := a
		if i%2 == 1 {
			block = b
		}
		if err := g.Vote(1, block); err != nil {
			t.Fatal(err)
		}
	}
	release()

	for i, g := range gates {
		d := waitDecision(t, g, 3*time.Second)
		if d.Outcome != Reject {
			t.Fatalf("gate %d: 2-2 split should be rejected", i)
		}
		if d.Round != 1 {
			t.Fatalf("gate %d: rejected round should be 1", i)
		}
	}
}

func TestRejectOnTimeout(t *testing.T) {
	providers, ps := initProviders(t, 4)
	g := New(peers.NewStaticQuery(ps),
		providers[0],
		silentBroadcaster{},
		100*time.Millisecond,
		5,
		nil,
		common.NewTestEntry(t, "yac"))
	defer g.Close()

	if err := g.Vote(5, testBlock(t, 1)); err != nil {
		t.Fatal(err)
	}

	d := waitDecision(t, g, 2*time.Second)
	if d.Outcome != Reject || d.Round != 5 {
		t.Fatalf("round 5 should be rejected after the vote delay")
	}

	if err := g.Vote(5, testBlock(t, 1)); !errors.Is(err, ErrStaleRound) {
		t.Fatalf("voting in a decided round should fail with ErrStaleRound")
	}
}

func TestCommitMessage(t *testing.T) {
	providers, ps := initProviders(t, 4)
	block := testBlock(t, 7)

	g := New(peers.NewStaticQuery(ps),
		providers[0],
		silentBroadcaster{},
		100*time.Millisecond,
		1,
		nil,
		common.NewTestEntry(t, "yac"))
	defer g.Close()

	votes := []Vote{}
	for _, p := range providers[1:] {
		v, err := NewVote(1, 2, block.Hash, p)
		if err != nil {
			t.Fatal(err)
		}
		votes = append(votes, *v)
	}

	if err := g.OnCommit(votes[:2]); err == nil {
		t.Fatalf("commit with 2 voters should be refused")
	}

	dup := []Vote{votes[0], votes[0], votes[1]}
	if err := g.OnCommit(dup); err == nil {
		t.Fatalf("commit with duplicated voters should be refused")
	}

	// this peer rejects round 1 first, then learns the others committed
	if err := g.Abstain(1); err != nil {
		t.Fatal(err)
	}
	d := waitDecision(t, g, 2*time.Second)
	if d.Outcome != Reject {
		t.Fatalf("abstaining peer should reject on timeout")
	}

	if err := g.OnCommit(votes); err != nil {
		t.Fatal(err)
	}
	d = waitDecision(t, g, 2*time.Second)
	if d.Outcome != Commit || !d.Late || d.Round != 1 {
		t.Fatalf("late commit should be delivered for a rejected round")
	}
	if d.Block != nil {
		t.Fatalf("peer had no candidate, block should be nil")
	}
	if len(d.Voters()) != 3 {
		t.Fatalf("decision should list 3 voters")
	}

	// a second copy is ignored
	if err := g.OnCommit(votes); err != nil {
		t.Fatal(err)
	}
	select {
	case d := <-g.Decisions():
		t.Fatalf("unexpected decision for round %d", d.Round)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFutureVotes(t *testing.T) {
	providers, ps := initProviders(t, 4)
	outsiders, _ := initProviders(t, 1)
	block := testBlock(t, 3)

	g := New(peers.NewStaticQuery(ps),
		providers[0],
		silentBroadcaster{},
		time.Second,
		1,
		nil,
		common.NewTestEntry(t, "yac"))
	defer g.Close()

	stranger, _ := NewVote(1, 2, block.Hash, outsiders[0])
	if err := g.OnVote(*stranger); err == nil {
		t.Fatalf("vote from a peer outside the set should be refused")
	}

	// an unanchored gate buffers a far vote
	far, _ := NewVote(1+FutureRounds, 2, block.Hash, providers[1])
	if err := g.OnVote(*far); err != nil {
		t.Fatal(err)
	}
	if !g.table.Has(1 + FutureRounds) {
		t.Fatalf("unanchored gate should buffer the vote")
	}

	// once in round 1, votes beyond the window are dropped
	if err := g.Abstain(1); err != nil {
		t.Fatal(err)
	}
	farther, _ := NewVote(1+FutureRounds, 2, block.Hash, providers[2])
	g.OnVote(*farther)
	if g.table.VoterCount(1+FutureRounds) != 1 {
		t.Fatalf("vote beyond the window should be dropped")
	}

	// a lagging peer follows a supermajority seen for a future round
	for _, p := range providers[1:] {
		v, _ := NewVote(3, 2, block.Hash, p)
		if err := g.OnVote(*v); err != nil {
			t.Fatal(err)
		}
	}

	d := waitDecision(t, g, time.Second)
	if d.Outcome != Commit || d.Round != 3 {
		t.Fatalf("should commit round 3 from buffered votes")
	}
	if g.Round() != 4 {
		t.Fatalf("next round should be 4, not %d", g.Round())
	}
}

func TestDecisionsInRoundOrder(t *testing.T) {
	providers, ps := initProviders(t, 4)
	block := testBlock(t, 5)

	g := New(peers.NewStaticQuery(ps),
		providers[0],
		silentBroadcaster{},
		time.Millisecond,
		1,
		nil,
		common.NewTestEntry(t, "yac"))
	defer g.Close()

	// the vote delay of round r races with a supermajority for r+1
	last := uint64(0)
	for r := uint64(1); r < 80; r += 2 {
		if err := g.Abstain(r); err != nil {
			t.Fatal(err)
		}
		go func(round uint64) {
			for _, p := range providers[1:] {
				v, _ := NewVote(round, 2, block.Hash, p)
				g.OnVote(*v)
			}
		}(r + 1)

		for {
			d := waitDecision(t, g, 2*time.Second)
			if d.Round <= last {
				t.Fatalf("round %d decided after round %d", d.Round, last)
			}
			last = d.Round
			if d.Round == r+1 {
				break
			}
		}
	}
}
