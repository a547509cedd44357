package ledger

import (
	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto"
)

// Proposal is a batch of transactions put forward for one consensus round.
// Height is the height of the block it should become, Round the consensus
// round it belongs to. CreatedTime becomes the timestamp of the candidate
// block so that every simulator produces the same hash. Signature is the
// ordering peer's, it is not part of the Proposal's identity.
type Proposal struct {
	Height       uint64
	Round        uint64
	CreatedTime  int64
	Transactions []*Transaction
	Signature    crypto.Signature
}

// NewProposal ...
func NewProposal(height, round uint64, createdTime int64, txs []*Transaction) *Proposal {
	return &Proposal{
		Height:       height,
		Round:        round,
		CreatedTime:  createdTime,
		Transactions: txs,
	}
}

// SigningHash implements crypto.Signable.
func (p *Proposal) SigningHash() ([]byte, error) {
	unsigned := *p
	unsigned.Signature = crypto.Signature{}

	data, err := marshalCanonical(&unsigned)
	if err != nil {
		return nil, err
	}
	return crypto.SHA256(data), nil
}

// Hash ...
func (p *Proposal) Hash() ([]byte, error) {
	return p.SigningHash()
}

// Hex ...
func (p *Proposal) Hex() string {
	hash, _ := p.Hash()
	return common.EncodeToString(hash)
}

// Sign replaces the signature with one by provider.
func (p *Proposal) Sign(provider crypto.Provider) error {
	sig, err := provider.Sign(p)
	if err != nil {
		return err
	}
	p.Signature = sig
	return nil
}

// Verify reports whether the Proposal was signed by the owner of publicKey.
func (p *Proposal) Verify(publicKey []byte) bool {
	return crypto.Verify(p, p.Signature, publicKey)
}
