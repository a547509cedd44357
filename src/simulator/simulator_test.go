package simulator

import (
	"errors"
	"testing"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto"
	"github.com/ashwinbangalore/irohaBG/src/crypto/keys"
	"github.com/ashwinbangalore/irohaBG/src/ledger"
)

func newProvider(t *testing.T) crypto.Provider {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	return crypto.NewECDSAProvider(key)
}

func initStore(t *testing.T, admin crypto.Provider) (ledger.Store, *ledger.Block) {
	store := ledger.NewInmemStore()
	genesis := ledger.NewTestGenesis(t, admin)
	if err := store.ApplyBlock(genesis); err != nil {
		t.Fatal(err)
	}
	return store, genesis
}

func TestProcess(t *testing.T) {
	admin := newProvider(t)
	store, genesis := initStore(t, admin)
	sim := New(store, newProvider(t), common.NewTestEntry(t, "sim"))

	tx := ledger.NewTestTransaction(t, admin, 100,
		ledger.AddAssetQuantity(ledger.TestAdminID, ledger.TestAssetID, "20.00"))
	proposal := ledger.NewProposal(2, 1, 1000, []*ledger.Transaction{tx})

	block, dropped, err := sim.Process(proposal)
	if err != nil {
		t.Fatal(err)
	}
	if len(dropped) != 0 {
		t.Fatalf("no transaction should be dropped: %v", dropped)
	}
	if block.Height() != 2 || block.Body.TxsNumber != 1 {
		t.Fatalf("block should be height 2 with 1 transaction")
	}
	if common.EncodeToString(block.PrevHash()) != genesis.Hex() {
		t.Fatalf("prev hash should be the genesis hash")
	}
	if block.Body.CreatedTime != proposal.CreatedTime {
		t.Fatalf("block should take the proposal timestamp")
	}
	if block.Transactions()[0].Hex() != tx.Hex() {
		t.Fatalf("block should hold the proposed transaction")
	}
	if len(block.Signatures) != 1 {
		t.Fatalf("candidate should be signed once")
	}

	// the authoritative state is untouched
	b, _ := store.WorldStateSnapshot().Balance(ledger.TestAdminID, ledger.TestAssetID)
	if b.Sign() != 0 {
		t.Fatalf("simulation should not modify the store, balance is %s", b)
	}
}

func TestProcessIsDeterministic(t *testing.T) {
	admin := newProvider(t)
	storeA, _ := initStore(t, admin)
	storeB := ledger.NewInmemStore()
	genesis, err := storeA.GetBlock(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := storeB.ApplyBlock(genesis); err != nil {
		t.Fatal(err)
	}

	txs := []*ledger.Transaction{
		ledger.NewTestTransaction(t, admin, 1,
			ledger.AddAssetQuantity(ledger.TestAdminID, ledger.TestAssetID, "5")),
		ledger.NewTestTransaction(t, admin, 2,
			ledger.SubtractAssetQuantity(ledger.TestAdminID, ledger.TestAssetID, "2.5")),
	}
	proposal := ledger.NewProposal(2, 7, 12345, txs)

	a, _, err := New(storeA, newProvider(t), common.NewTestEntry(t, "a")).Process(proposal)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := New(storeB, newProvider(t), common.NewTestEntry(t, "b")).Process(proposal)
	if err != nil {
		t.Fatal(err)
	}

	if a.Hex() != b.Hex() {
		t.Fatalf("independent simulations should produce the same hash")
	}
}

func TestProcessDropsInvalid(t *testing.T) {
	admin := newProvider(t)
	store, _ := initStore(t, admin)
	sim := New(store, newProvider(t), common.NewTestEntry(t, "sim"))

	good := ledger.NewTestTransaction(t, admin, 1,
		ledger.AddAssetQuantity(ledger.TestAdminID, ledger.TestAssetID, "1"))
	overdraft := ledger.NewTestTransaction(t, admin, 2,
		ledger.SubtractAssetQuantity(ledger.TestAdminID, ledger.TestAssetID, "5"))
	forged := ledger.NewTestTransaction(t, newProvider(t), 3,
		ledger.AddAssetQuantity(ledger.TestAdminID, ledger.TestAssetID, "1"))

	block, dropped, err := sim.Process(ledger.NewProposal(2, 1, 0,
		[]*ledger.Transaction{good, overdraft, forged, good}))
	if err != nil {
		t.Fatal(err)
	}

	if len(block.Transactions()) != 1 || block.Transactions()[0].Hex() != good.Hex() {
		t.Fatalf("only the first valid transaction should be kept")
	}
	if len(dropped) != 3 {
		t.Fatalf("3 transactions should be dropped, not %d", len(dropped))
	}
	for _, err := range dropped {
		if !ledger.IsValidation(err) {
			t.Fatalf("dropped transactions should be validation errors: %v", err)
		}
	}
}

func TestProcessHeightMismatch(t *testing.T) {
	admin := newProvider(t)
	store, _ := initStore(t, admin)
	sim := New(store, newProvider(t), common.NewTestEntry(t, "sim"))

	_, _, err := sim.Process(ledger.NewProposal(5, 1, 0, nil))

	var herr HeightError
	if !errors.As(err, &herr) || herr.Ledger != 1 || herr.Proposal != 5 {
		t.Fatalf("expected a HeightError, got %v", err)
	}
}
