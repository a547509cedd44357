package ledger

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/ashwinbangalore/irohaBG/src/crypto"
	"github.com/ashwinbangalore/irohaBG/src/crypto/keys"
	"github.com/ashwinbangalore/irohaBG/src/peers"
)

func newProvider(t *testing.T) *crypto.ECDSAProvider {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	return crypto.NewECDSAProvider(key)
}

func TestTransactionIdentity(t *testing.T) {
	alice := newProvider(t)
	bob := newProvider(t)

	tx := NewTestTransaction(t, alice, 1000, AddAssetQuantity(TestAdminID, TestAssetID, "20.00"))
	h1, _ := tx.Hash()

	if err := tx.Sign(bob); err != nil {
		t.Fatal(err)
	}
	h2, _ := tx.Hash()

	if !bytes.Equal(h1, h2) {
		t.Fatalf("signing should not change the identity of a transaction")
	}

	other := NewTestTransaction(t, alice, 1001, AddAssetQuantity(TestAdminID, TestAssetID, "20.00"))
	if other.Hex() == tx.Hex() {
		t.Fatalf("different timestamps should give different identities")
	}

	data, err := tx.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	decoded := new(Transaction)
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatal(err)
	}
	if decoded.Hex() != tx.Hex() {
		t.Fatalf("decoded transaction should have the same identity")
	}
	for _, sig := range decoded.Signatures {
		if !crypto.Verify(decoded, sig, sig.PublicKey) {
			t.Fatalf("signatures should survive encoding")
		}
	}
}

func TestTransactionWellFormed(t *testing.T) {
	p := newProvider(t)

	if err := NewTestTransaction(t, p, 0, AddAssetQuantity(TestAdminID, TestAssetID, "20.00")).WellFormed(); err != nil {
		t.Fatalf("transaction should be well formed: %v", err)
	}

	bad := []*Transaction{
		NewTestTransaction(t, p, 0),
		NewTestTransaction(t, p, 0, AddAssetQuantity("admin", TestAssetID, "20.00")),
		NewTestTransaction(t, p, 0, AddAssetQuantity(TestAdminID, TestAssetID, "0.00")),
		NewTestTransaction(t, p, 0, TransferAsset(TestAdminID, TestAdminID, TestAssetID, "", "1")),
		NewTestTransaction(t, p, 0, Command{Type: "Mint"}),
		NewTransaction(TestAdminID, 0, AddAssetQuantity(TestAdminID, TestAssetID, "20.00")),
	}

	for i, tx := range bad {
		if err := tx.WellFormed(); err == nil {
			t.Fatalf("transaction %d should not be well formed", i)
		}
	}
}

func TestBlockHashAndSignatures(t *testing.T) {
	admin := newProvider(t)
	peerKey := newProvider(t)

	genesis := NewTestGenesis(t, admin)

	txs := []*Transaction{
		NewTestTransaction(t, admin, 1, AddAssetQuantity(TestAdminID, TestAssetID, "20.00")),
		NewTestTransaction(t, admin, 2, AddAssetQuantity(TestAdminID, TestAssetID, "1.00")),
	}

	block, err := NewBlock(2, genesis.Hash, txs, 42)
	if err != nil {
		t.Fatal(err)
	}

	if block.Body.TxsNumber != 2 {
		t.Fatalf("TxsNumber should be 2, not %d", block.Body.TxsNumber)
	}
	if err := block.VerifyHash(); err != nil {
		t.Fatal(err)
	}

	// same inputs, same hash
	same, _ := NewBlock(2, genesis.Hash, txs, 42)
	if !bytes.Equal(same.Hash, block.Hash) {
		t.Fatalf("blocks built from the same inputs should have the same hash")
	}

	// signing does not change the hash
	if err := block.Sign(peerKey); err != nil {
		t.Fatal(err)
	}
	if err := block.Sign(peerKey); err != nil || len(block.Signatures) != 1 {
		t.Fatalf("signing twice with the same key should be a no-op")
	}
	if err := block.VerifyHash(); err != nil {
		t.Fatalf("signature should not be part of the hash: %v", err)
	}

	peerSet := peers.NewPeerSet([]*peers.Peer{
		peers.NewPeer(keys.PublicKeyHex(keys.ToPublicKey(peerKey.PublicKey())), "addr0", "peer0"),
	})
	if err := block.VerifySignatures(peerSet); err != nil {
		t.Fatal(err)
	}

	outsiders := peers.NewPeerSet([]*peers.Peer{
		peers.NewPeer(keys.PublicKeyHex(keys.ToPublicKey(admin.PublicKey())), "addr1", "admin"),
	})
	if err := block.VerifySignatures(outsiders); err == nil {
		t.Fatalf("a signature from outside the peer set should not verify")
	}

	// encoding round trip keeps the hash valid
	data, err := block.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	decoded := new(Block)
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatal(err)
	}
	if err := decoded.VerifyHash(); err != nil {
		t.Fatalf("decoded block: %v", err)
	}
	if !reflect.DeepEqual(decoded.Body.MerkleRoot, block.Body.MerkleRoot) {
		t.Fatalf("merkle root changed in encoding")
	}

	// tampering is detected
	decoded.Body.Transactions = decoded.Body.Transactions[:1]
	if err := decoded.VerifyHash(); err == nil {
		t.Fatalf("tampered block should not verify")
	}
}

func TestEmptyBlockHash(t *testing.T) {
	block, err := NewBlock(2, crypto.ZeroHash(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(block.Body.MerkleRoot, crypto.ZeroHash()) {
		t.Fatalf("empty block should have a zero merkle root")
	}

	data, _ := block.Marshal()
	decoded := new(Block)
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatal(err)
	}
	if err := decoded.VerifyHash(); err != nil {
		t.Fatal(err)
	}
}
