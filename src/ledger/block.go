package ledger

import (
	"bytes"
	"fmt"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto"
	"github.com/ashwinbangalore/irohaBG/src/peers"
)

// GenesisHeight is the height of the first block.
const GenesisHeight = 1

// BlockBody holds every hashed field of a block.
type BlockBody struct {
	Height       uint64
	PrevHash     []byte
	Transactions []*Transaction
	TxsNumber    uint32
	CreatedTime  int64
	MerkleRoot   []byte
}

// Marshal returns the canonical encoding of the body.
func (bb *BlockBody) Marshal() ([]byte, error) {
	bb.normalize()
	return marshalCanonical(bb)
}

// normalize replaces nil slices with empty ones. Codecs disagree on whether an
// empty list decodes to nil, and null and [] hash differently.
func (bb *BlockBody) normalize() {
	if bb.Transactions == nil {
		bb.Transactions = []*Transaction{}
	}
	for _, tx := range bb.Transactions {
		if tx.Signatures == nil {
			tx.Signatures = []crypto.Signature{}
		}
	}
}

// Hash ...
func (bb *BlockBody) Hash() ([]byte, error) {
	hashBytes, err := bb.Marshal()
	if err != nil {
		return nil, err
	}
	return crypto.SHA256(hashBytes), nil
}

// Block is a body, its hash, and the signatures of the peers that created or
// attested it. The signatures are over the hash and are appended after
// hashing.
type Block struct {
	Body       BlockBody
	Hash       []byte
	Signatures []crypto.Signature

	hex string
}

// NewBlock builds and hashes a block. The merkle root covers the transaction
// hashes.
func NewBlock(height uint64, prevHash []byte, txs []*Transaction, createdTime int64) (*Block, error) {
	if txs == nil {
		txs = []*Transaction{}
	}

	leaves, err := TransactionHashes(txs)
	if err != nil {
		return nil, err
	}

	block := &Block{
		Body: BlockBody{
			Height:       height,
			PrevHash:     prevHash,
			Transactions: txs,
			TxsNumber:    uint32(len(txs)),
			CreatedTime:  createdTime,
			MerkleRoot:   crypto.MerkleRoot(leaves),
		},
		Signatures: []crypto.Signature{},
	}

	hash, err := block.Body.Hash()
	if err != nil {
		return nil, err
	}
	block.Hash = hash

	return block, nil
}

// Height ...
func (b *Block) Height() uint64 {
	return b.Body.Height
}

// PrevHash ...
func (b *Block) PrevHash() []byte {
	return b.Body.PrevHash
}

// Transactions ...
func (b *Block) Transactions() []*Transaction {
	return b.Body.Transactions
}

// Hex ...
func (b *Block) Hex() string {
	if b.hex == "" {
		b.hex = common.EncodeToString(b.Hash)
	}
	return b.hex
}

// SigningHash implements crypto.Signable.
func (b *Block) SigningHash() ([]byte, error) {
	if len(b.Hash) == 0 {
		return nil, fmt.Errorf("block %d is not hashed", b.Height())
	}
	return b.Hash, nil
}

// Sign appends the provider's signature, unless that key already signed.
func (b *Block) Sign(provider crypto.Provider) error {
	for _, s := range b.Signatures {
		if bytes.Equal(s.PublicKey, provider.PublicKey()) {
			return nil
		}
	}
	sig, err := provider.Sign(b)
	if err != nil {
		return err
	}
	b.Signatures = append(b.Signatures, sig)
	return nil
}

// VerifyHash recomputes the body hash and the merkle root and compares them
// with the stored values.
func (b *Block) VerifyHash() error {
	if b.Body.TxsNumber != uint32(len(b.Body.Transactions)) {
		return fmt.Errorf("block %d: txs_number %d does not match %d transactions",
			b.Height(), b.Body.TxsNumber, len(b.Body.Transactions))
	}

	leaves, err := TransactionHashes(b.Body.Transactions)
	if err != nil {
		return err
	}
	if !bytes.Equal(crypto.MerkleRoot(leaves), b.Body.MerkleRoot) {
		return fmt.Errorf("block %d: merkle root mismatch", b.Height())
	}

	hash, err := b.Body.Hash()
	if err != nil {
		return err
	}
	if !bytes.Equal(hash, b.Hash) {
		return fmt.Errorf("block %d: hash mismatch, computed %s, carried %s",
			b.Height(), common.EncodeToString(hash), b.Hex())
	}
	return nil
}

// VerifySignatures checks that the block carries at least one signature, and
// that every signature comes from a member of peerSet and verifies.
func (b *Block) VerifySignatures(peerSet *peers.PeerSet) error {
	if len(b.Signatures) == 0 {
		return fmt.Errorf("block %d is not signed", b.Height())
	}
	for _, sig := range b.Signatures {
		if !peerSet.Contains(sig.PublicKey) {
			return fmt.Errorf("block %d signed by unknown peer %s",
				b.Height(), common.ShortHex(sig.PublicKey))
		}
		if !crypto.Verify(b, sig, sig.PublicKey) {
			return fmt.Errorf("block %d: invalid signature from %s",
				b.Height(), common.ShortHex(sig.PublicKey))
		}
	}
	return nil
}

// Marshal ...
func (b *Block) Marshal() ([]byte, error) {
	return marshalCanonical(b)
}

// Unmarshal ...
func (b *Block) Unmarshal(data []byte) error {
	b.hex = ""
	return unmarshalCanonical(data, b)
}
