package yac

import (
	"encoding/binary"
	"fmt"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto"
)

// Vote is a peer's signed attestation of a candidate block hash for a round.
type Vote struct {
	Round     uint64
	Height    uint64
	BlockHash []byte
	Signature crypto.Signature
}

// NewVote creates and signs a vote.
func NewVote(round, height uint64, blockHash []byte, provider crypto.Provider) (*Vote, error) {
	v := &Vote{
		Round:     round,
		Height:    height,
		BlockHash: blockHash,
	}

	sig, err := provider.Sign(v)
	if err != nil {
		return nil, err
	}
	v.Signature = sig

	return v, nil
}

// SigningHash implements crypto.Signable. It covers the round, the height and
// the block hash, in a fixed-width big-endian layout.
func (v *Vote) SigningHash() ([]byte, error) {
	buf := make([]byte, 16+len(v.BlockHash))
	binary.BigEndian.PutUint64(buf[0:8], v.Round)
	binary.BigEndian.PutUint64(buf[8:16], v.Height)
	copy(buf[16:], v.BlockHash)
	return crypto.SHA256(buf), nil
}

// Voter returns the public key of the peer that signed the vote.
func (v *Vote) Voter() []byte {
	return v.Signature.PublicKey
}

// HashHex ...
func (v *Vote) HashHex() string {
	return common.EncodeToString(v.BlockHash)
}

// Verify checks the signature against the key the vote claims. Membership of
// the signer is checked by the gate.
func (v *Vote) Verify() error {
	if len(v.BlockHash) != crypto.HashSize {
		return fmt.Errorf("vote hash has %d bytes", len(v.BlockHash))
	}
	if !crypto.Verify(v, v.Signature, v.Signature.PublicKey) {
		return fmt.Errorf("invalid vote signature from %s", common.ShortHex(v.Voter()))
	}
	return nil
}
