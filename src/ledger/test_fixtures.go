package ledger

import (
	"testing"

	"github.com/ashwinbangalore/irohaBG/src/crypto"
)

// Identifiers of the ledger created by NewTestGenesis.
const (
	TestDomain    = "test"
	TestAdminID   = "admin@test"
	TestAssetID   = "coin#test"
	TestPrecision = 2
)

// NewTestGenesis returns a genesis block creating the test domain, the
// admin@test account signed by admin, and the coin#test asset.
func NewTestGenesis(t testing.TB, admin crypto.Provider) *Block {
	tx := NewGenesisTransaction(TestDomain, "admin", admin.PublicKey(),
		[]GenesisAsset{{Name: "coin", Precision: TestPrecision}}, 0)

	block, err := NewGenesisBlock([]*Transaction{tx}, 0)
	if err != nil {
		t.Fatalf("building genesis block: %v", err)
	}
	return block
}

// NewTestTransaction returns a transaction from admin@test signed by signer.
func NewTestTransaction(t testing.TB, signer crypto.Provider, createdTime int64, cmds ...Command) *Transaction {
	tx := NewTransaction(TestAdminID, createdTime, cmds...)
	if err := tx.Sign(signer); err != nil {
		t.Fatalf("signing transaction: %v", err)
	}
	return tx
}

// AppendTestBlocks appends n empty blocks, signed by signer, to store.
func AppendTestBlocks(t testing.TB, store Store, signer crypto.Provider, n int) {
	for i := 0; i < n; i++ {
		height := store.Height() + 1
		block, err := NewBlock(height, store.TopHash(), nil, int64(height))
		if err != nil {
			t.Fatalf("building block %d: %v", height, err)
		}
		if err := block.Sign(signer); err != nil {
			t.Fatalf("signing block %d: %v", height, err)
		}
		if err := store.ApplyBlock(block); err != nil {
			t.Fatalf("applying block %d: %v", height, err)
		}
	}
}
