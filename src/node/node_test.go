package node

import (
	"crypto/ecdsa"
	"fmt"
	"testing"
	"time"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto"
	"github.com/ashwinbangalore/irohaBG/src/crypto/keys"
	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/ashwinbangalore/irohaBG/src/net"
	"github.com/ashwinbangalore/irohaBG/src/ordering"
	"github.com/ashwinbangalore/irohaBG/src/pcs"
	"github.com/ashwinbangalore/irohaBG/src/peers"
	"github.com/ashwinbangalore/irohaBG/src/yac"
)

type testNetwork struct {
	nodes      []*Node
	transports []*net.InmemTransport
	admin      crypto.Provider
	genesis    *ledger.Block
}

// initNodes creates n nodes connected by in-memory transports. Every store
// holds the same genesis block. Nodes are returned in canonical peer order,
// so nodes[0] is the ordering peer.
func initNodes(t *testing.T, n int) *testNetwork {
	adminKey, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	admin := crypto.NewECDSAProvider(adminKey)
	genesis := ledger.NewTestGenesis(t, admin)

	pkeys := make(map[string]*ecdsa.PrivateKey)
	pirs := []*peers.Peer{}
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatal(err)
		}
		addr := net.NewInmemAddr()
		peer := peers.NewPeer(keys.PublicKeyHex(&key.PublicKey), addr, fmt.Sprintf("node%d", i))
		pirs = append(pirs, peer)
		pkeys[addr] = key
	}

	peerSet := peers.NewPeerSet(pirs)

	tn := &testNetwork{admin: admin, genesis: genesis}

	for _, p := range peerSet.Peers {
		_, trans := net.NewInmemTransport(p.NetAddr, time.Second)

		store := ledger.NewInmemStore()
		if err := store.ApplyBlock(genesis); err != nil {
			t.Fatal(err)
		}

		conf := TestConfig(t)
		node := NewNode(conf,
			NewValidator(pkeys[p.NetAddr], p.Moniker),
			peerSet,
			store,
			trans)

		tn.nodes = append(tn.nodes, node)
		tn.transports = append(tn.transports, trans)
	}

	net.ConnectAll(tn.transports)

	t.Cleanup(func() {
		for _, n := range tn.nodes {
			n.Shutdown()
		}
	})

	return tn
}

func (tn *testNetwork) runAll(nodes ...*Node) {
	for _, n := range nodes {
		n.RunAsync()
	}
}

func waitCommit(t *testing.T, commits <-chan pcs.Commit, timeout time.Duration) []*ledger.Block {
	t.Helper()
	select {
	case c := <-commits:
		blocks := []*ledger.Block{}
		for b := range c {
			blocks = append(blocks, b)
		}
		return blocks
	case <-time.After(timeout):
		t.Fatalf("no commit after %v", timeout)
	}
	return nil
}

func waitHeight(t *testing.T, n *Node, height uint64, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for n.Height() < height {
		if time.Now().After(deadline) {
			t.Fatalf("%s: height %d after %v, expected %d", n.validator.Moniker, n.Height(), timeout, height)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestCommitAcrossPeers(t *testing.T) {
	tn := initNodes(t, 4)

	if !tn.nodes[0].IsOrderingPeer() {
		t.Fatalf("the first peer should run the ordering service")
	}
	for _, n := range tn.nodes[1:] {
		if n.IsOrderingPeer() {
			t.Fatalf("%s should not run the ordering service", n.validator.Moniker)
		}
	}

	proposalChs := []<-chan *ledger.Proposal{}
	commitChs := []<-chan pcs.Commit{}
	for _, n := range tn.nodes {
		p, cancelP := n.OnProposal()
		c, cancelC := n.OnCommit()
		defer cancelP()
		defer cancelC()
		proposalChs = append(proposalChs, p)
		commitChs = append(commitChs, c)
	}

	tn.runAll(tn.nodes...)

	tx := ledger.NewTestTransaction(t, tn.admin, 1,
		ledger.AddAssetQuantity(ledger.TestAdminID, ledger.TestAssetID, "20.00"))

	// submitted to a peer that forwards it to the ordering peer
	if err := tn.nodes[2].SubmitTransaction(tx); err != nil {
		t.Fatal(err)
	}

	for i, ch := range proposalChs {
		select {
		case p := <-ch:
			if p.Height != 2 || len(p.Transactions) != 1 || p.Transactions[0].Hex() != tx.Hex() {
				t.Fatalf("node%d: proposal should be height 2 with the submitted transaction", i)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("node%d: no proposal", i)
		}
	}

	var hash string
	for i, ch := range commitChs {
		blocks := waitCommit(t, ch, 5*time.Second)
		if len(blocks) != 1 {
			t.Fatalf("node%d: commit should hold one block, not %d", i, len(blocks))
		}
		b := blocks[0]
		if b.Height() != 2 || b.Body.TxsNumber != 1 {
			t.Fatalf("node%d: block should be height 2 with 1 transaction", i)
		}
		if common.EncodeToString(b.PrevHash()) != tn.genesis.Hex() {
			t.Fatalf("node%d: block should extend the genesis block", i)
		}
		if hash == "" {
			hash = b.Hex()
		} else if b.Hex() != hash {
			t.Fatalf("node%d: committed %s, others committed %s", i, b.Hex(), hash)
		}
	}

	for i, n := range tn.nodes {
		balance, ok := n.store.WorldStateSnapshot().Balance(ledger.TestAdminID, ledger.TestAssetID)
		if !ok || balance.String() != "20.00" {
			t.Fatalf("node%d: balance should be 20.00, not %s", i, balance)
		}
	}

	// a replayed transaction is ordered again but dropped by simulation
	if err := tn.nodes[1].SubmitTransaction(tx); err != nil {
		t.Fatal(err)
	}
	for i, ch := range commitChs {
		blocks := waitCommit(t, ch, 5*time.Second)
		if len(blocks) != 1 || blocks[0].Height() != 3 || blocks[0].Body.TxsNumber != 0 {
			t.Fatalf("node%d: replay should commit an empty block at height 3", i)
		}
	}
	for i, n := range tn.nodes {
		balance, _ := n.store.WorldStateSnapshot().Balance(ledger.TestAdminID, ledger.TestAssetID)
		if balance.String() != "20.00" {
			t.Fatalf("node%d: replayed transaction changed the balance to %s", i, balance)
		}
	}

	stats := tn.nodes[0].GetStats()
	if stats["height"] != "3" || stats["state"] != "Running" || stats["ordering_peer"] != tn.nodes[0].validator.Moniker {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestLaggingPeerCatchesUp(t *testing.T) {
	tn := initNodes(t, 4)

	// three peers are a supermajority of four
	tn.runAll(tn.nodes[:3]...)

	tx1 := ledger.NewTestTransaction(t, tn.admin, 1,
		ledger.AddAssetQuantity(ledger.TestAdminID, ledger.TestAssetID, "1.00"))
	if err := tn.nodes[0].SubmitTransaction(tx1); err != nil {
		t.Fatal(err)
	}
	for _, n := range tn.nodes[:3] {
		waitHeight(t, n, 2, 5*time.Second)
	}

	if tn.nodes[3].Height() != 1 {
		t.Fatalf("stopped node should not have committed")
	}

	tn.runAll(tn.nodes[3])

	tx2 := ledger.NewTestTransaction(t, tn.admin, 2,
		ledger.AddAssetQuantity(ledger.TestAdminID, ledger.TestAssetID, "2.00"))
	if err := tn.nodes[1].SubmitTransaction(tx2); err != nil {
		t.Fatal(err)
	}

	for _, n := range tn.nodes {
		waitHeight(t, n, 3, 10*time.Second)
	}

	top := common.EncodeToString(tn.nodes[0].store.TopHash())
	for i, n := range tn.nodes[1:] {
		if h := common.EncodeToString(n.store.TopHash()); h != top {
			t.Fatalf("node%d: top hash %s, expected %s", i+1, h, top)
		}
	}

	balance, _ := tn.nodes[3].store.WorldStateSnapshot().Balance(ledger.TestAdminID, ledger.TestAssetID)
	if balance.String() != "3.00" {
		t.Fatalf("lagging node balance should be 3.00, not %s", balance)
	}
}

func TestShutdown(t *testing.T) {
	tn := initNodes(t, 2)
	tn.runAll(tn.nodes...)

	tn.nodes[0].Shutdown()

	if s := tn.nodes[0].State(); s != Shutdown {
		t.Fatalf("state should be Shutdown, not %v", s)
	}

	var resp net.BlocksResponse
	err := tn.transports[1].Blocks(tn.transports[0].LocalAddr(), &net.BlocksRequest{From: 1, To: 1}, &resp)
	if err == nil {
		t.Fatalf("a shut down node should not answer")
	}

	// idempotent
	tn.nodes[0].Shutdown()
}

func TestProcessRPC(t *testing.T) {
	tn := initNodes(t, 4)
	tn.runAll(tn.nodes...)

	from := tn.transports[3]
	target := tn.transports[1].LocalAddr()

	var blocks net.BlocksResponse
	if err := from.Blocks(target, &net.BlocksRequest{From: 1, To: 5}, &blocks); err != nil {
		t.Fatal(err)
	}
	if len(blocks.Blocks) != 1 || blocks.Blocks[0].Hex() != tn.genesis.Hex() {
		t.Fatalf("BlocksRequest should return the genesis block only")
	}
	if blocks.FromID != tn.nodes[1].ID() {
		t.Fatalf("response should carry the responder's ID")
	}

	if err := from.Blocks(target, &net.BlocksRequest{From: 2, To: 5}, &blocks); err == nil {
		t.Fatalf("BlocksRequest beyond the local height should fail")
	}

	tx := ledger.NewTestTransaction(t, tn.admin, 1,
		ledger.AddAssetQuantity(ledger.TestAdminID, ledger.TestAssetID, "1"))

	// only the ordering peer takes transactions
	var txResp net.TransactionsResponse
	err := from.SubmitTransactions(target, &net.TransactionsRequest{
		FromID:       tn.nodes[3].ID(),
		Transactions: []*ledger.Transaction{tx},
	}, &txResp)
	if err == nil {
		t.Fatalf("a peer other than the ordering peer should refuse transactions")
	}

	// and only the ordering peer sends proposals
	var propResp net.ProposalResponse
	err = from.Propose(target, &net.ProposalRequest{
		FromID:   tn.nodes[3].ID(),
		Proposal: ledger.Proposal{Round: 1, Height: 2, Transactions: []*ledger.Transaction{tx}},
	}, &propResp)
	if err == nil {
		t.Fatalf("a proposal from a peer other than the ordering peer should be refused")
	}

	// a vote with a bad signature is refused
	var voteResp net.VoteResponse
	vote := yac.Vote{Round: 1, Height: 2, BlockHash: make([]byte, crypto.HashSize)}
	if err := from.Vote(target, &net.VoteRequest{FromID: tn.nodes[3].ID(), Vote: vote}, &voteResp); err == nil {
		t.Fatalf("an unsigned vote should be refused")
	}

	err = from.SubmitTransactions(tn.transports[0].LocalAddr(), &net.TransactionsRequest{
		FromID:       tn.nodes[3].ID(),
		Transactions: []*ledger.Transaction{tx, tx},
	}, &txResp)
	if err != nil {
		t.Fatal(err)
	}
	if len(txResp.Errors) != 2 || txResp.Errors[0] != "" || txResp.Errors[1] != ordering.ErrAlreadyQueued.Error() {
		t.Fatalf("unexpected errors %v", txResp.Errors)
	}
	if remoteError(txResp.Errors[1]) != ordering.ErrAlreadyQueued {
		t.Fatalf("remote errors should map back to ErrAlreadyQueued")
	}

	waitHeight(t, tn.nodes[3], 2, 5*time.Second)
}

func TestProposalSignature(t *testing.T) {
	tn := initNodes(t, 4)
	tn.runAll(tn.nodes...)

	from := tn.transports[2]
	target := tn.transports[3].LocalAddr()
	leader := tn.nodes[0]

	// far ahead of every ledger
	proposal := ledger.Proposal{Round: 0, Height: 1 << 62}

	// claims to come from the ordering peer but is signed by another peer
	forged := proposal
	if err := forged.Sign(tn.nodes[2].validator.Provider()); err != nil {
		t.Fatal(err)
	}
	var resp net.ProposalResponse
	err := from.Propose(target, &net.ProposalRequest{FromID: leader.ID(), Proposal: forged}, &resp)
	if err == nil || resp.Success {
		t.Fatalf("a proposal not signed by the ordering peer should be refused")
	}

	signed := proposal
	if err := signed.Sign(leader.validator.Provider()); err != nil {
		t.Fatal(err)
	}
	if err := from.Propose(target, &net.ProposalRequest{FromID: leader.ID(), Proposal: signed}, &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatalf("a proposal signed by the ordering peer should be accepted")
	}

	// the unreachable height is abstained on after a bounded catch-up
	time.Sleep(500 * time.Millisecond)

	if s := tn.nodes[3].State(); s != Running {
		t.Fatalf("node should still be running, not %v", s)
	}
	if h := tn.nodes[3].Height(); h != 1 {
		t.Fatalf("height should still be 1, not %d", h)
	}
}
