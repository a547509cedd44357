package net

import (
	"reflect"
	"testing"
	"time"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto"
	"github.com/ashwinbangalore/irohaBG/src/crypto/keys"
	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/ashwinbangalore/irohaBG/src/yac"
)

const (
	INMEM = iota
	TCP
	numTestTransports // NOTE: must be last
)

func NewTestTransport(ttype int, addr string, t *testing.T) Transport {
	switch ttype {
	case INMEM:
		_, it := NewInmemTransport(addr, time.Second)
		return it
	case TCP:
		tt, err := NewTCPTransport(addr, "", 2, time.Second, 2*time.Second, common.NewTestEntry(t, "net"))
		if err != nil {
			t.Fatal(err)
		}
		go tt.Listen()
		return tt
	default:
		panic("Unknown transport type")
	}
}

// connect lets trans2 reach trans1. Only the inmem transport needs it.
func connect(trans1, trans2 Transport) {
	if it, ok := trans2.(*InmemTransport); ok {
		it.Connect(trans1.LocalAddr(), trans1)
	}
}

// serveOne answers the next RPC on ch with resp, after checking its command.
func serveOne(t *testing.T, ch <-chan RPC, check func(cmd interface{}) bool, resp interface{}) {
	go func() {
		select {
		case rpc := <-ch:
			if !check(rpc.Command) {
				t.Errorf("unexpected command: %#v", rpc.Command)
			}
			rpc.Respond(resp, nil)
		case <-time.After(200 * time.Millisecond):
			t.Errorf("expected RPC")
		}
	}()
}

func testBlock(t *testing.T) (*ledger.Block, crypto.Provider) {
	key, _ := keys.GenerateECDSAKey()
	p := crypto.NewECDSAProvider(key)
	genesis := ledger.NewTestGenesis(t, p)
	tx := ledger.NewTestTransaction(t, p, 10, ledger.AddAssetQuantity(ledger.TestAdminID, ledger.TestAssetID, "20.00"))
	block, err := ledger.NewBlock(2, genesis.Hash, []*ledger.Transaction{tx}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := block.Sign(p); err != nil {
		t.Fatal(err)
	}
	return block, p
}

func TestTransport_StartStop(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans := NewTestTransport(ttype, "127.0.0.1:0", t)
		if err := trans.Close(); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
}

func TestTransport_Blocks(t *testing.T) {
	block, _ := testBlock(t)

	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans1.Close()
		trans2 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans2.Close()
		connect(trans1, trans2)

		args := BlocksRequest{FromID: 1, From: 2, To: 2}
		resp := BlocksResponse{FromID: 0, Blocks: []*ledger.Block{block}}

		serveOne(t, trans1.Consumer(), func(cmd interface{}) bool {
			return reflect.DeepEqual(cmd, &args)
		}, &resp)

		var out BlocksResponse
		if err := trans2.Blocks(trans1.AdvertiseAddr(), &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}

		if len(out.Blocks) != 1 {
			t.Fatalf("expected one block, got %d", len(out.Blocks))
		}
		// the hash must survive the wire encoding
		if err := out.Blocks[0].VerifyHash(); err != nil {
			t.Fatalf("transport %d: %v", ttype, err)
		}
		if out.Blocks[0].Hex() != block.Hex() {
			t.Fatalf("transport %d: block hash changed", ttype)
		}
	}
}

func TestTransport_ProposalAndVotes(t *testing.T) {
	block, p := testBlock(t)

	vote, err := yac.NewVote(3, block.Height(), block.Hash, p)
	if err != nil {
		t.Fatal(err)
	}

	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans1.Close()
		trans2 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans2.Close()
		connect(trans1, trans2)

		proposal := ProposalRequest{
			FromID:   7,
			Proposal: *ledger.NewProposal(2, 3, 10, block.Transactions()),
		}
		if err := proposal.Proposal.Sign(p); err != nil {
			t.Fatal(err)
		}
		serveOne(t, trans1.Consumer(), func(cmd interface{}) bool {
			req, ok := cmd.(*ProposalRequest)
			return ok && req.Proposal.Round == 3 &&
				req.Proposal.Hex() == proposal.Proposal.Hex() &&
				req.Proposal.Verify(p.PublicKey())
		}, &ProposalResponse{FromID: 1, Success: true})

		var presp ProposalResponse
		if err := trans2.Propose(trans1.AdvertiseAddr(), &proposal, &presp); err != nil {
			t.Fatalf("err: %v", err)
		}
		if !presp.Success {
			t.Fatalf("proposal should succeed")
		}

		voteReq := VoteRequest{FromID: 7, Vote: *vote}
		serveOne(t, trans1.Consumer(), func(cmd interface{}) bool {
			req, ok := cmd.(*VoteRequest)
			return ok && req.Vote.Verify() == nil && req.Vote.HashHex() == block.Hex()
		}, &VoteResponse{FromID: 1, Success: true})

		var vresp VoteResponse
		if err := trans2.Vote(trans1.AdvertiseAddr(), &voteReq, &vresp); err != nil {
			t.Fatalf("err: %v", err)
		}

		commit := CommitRequest{FromID: 7, Votes: []yac.Vote{*vote}}
		serveOne(t, trans1.Consumer(), func(cmd interface{}) bool {
			req, ok := cmd.(*CommitRequest)
			return ok && len(req.Votes) == 1 && req.Votes[0].Round == 3
		}, &CommitResponse{FromID: 1, Success: true})

		var cresp CommitResponse
		if err := trans2.Commit(trans1.AdvertiseAddr(), &commit, &cresp); err != nil {
			t.Fatalf("err: %v", err)
		}
		if !cresp.Success {
			t.Fatalf("commit should succeed")
		}
	}
}

func TestTransport_Error(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans1.Close()
		trans2 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans2.Close()
		connect(trans1, trans2)

		go func() {
			rpc := <-trans1.Consumer()
			rpc.Respond(&BlocksResponse{}, ErrTransportShutdown)
		}()

		var out BlocksResponse
		err := trans2.Blocks(trans1.AdvertiseAddr(), &BlocksRequest{From: 5, To: 5}, &out)
		if err == nil || err.Error() != ErrTransportShutdown.Error() {
			t.Fatalf("transport %d: expected the remote error, got %v", ttype, err)
		}
	}
}

func TestInmemTransport_Unreachable(t *testing.T) {
	_, trans := NewInmemTransport("", 50*time.Millisecond)
	defer trans.Close()

	var out VoteResponse
	if err := trans.Vote("nowhere", &VoteRequest{}, &out); err == nil {
		t.Fatalf("vote to an unknown peer should fail")
	}
}
