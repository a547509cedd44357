package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/ashwinbangalore/irohaBG/src/crypto/keys"
)

// Signature is a detached signature along with the public key that produced
// it.
type Signature struct {
	PublicKey []byte
	Value     string
}

// Signable is implemented by every entity that gets signed: transactions,
// blocks and votes. SigningHash must be deterministic.
type Signable interface {
	SigningHash() ([]byte, error)
}

// Provider signs entities with the local key and verifies signatures from
// other peers.
type Provider interface {
	PublicKey() []byte
	Sign(entity Signable) (Signature, error)
	Verify(entity Signable, sig Signature, publicKey []byte) bool
}

// ECDSAProvider is the Provider backed by a secp256k1 private key.
type ECDSAProvider struct {
	key    *ecdsa.PrivateKey
	pubKey []byte
}

// NewECDSAProvider ...
func NewECDSAProvider(key *ecdsa.PrivateKey) *ECDSAProvider {
	return &ECDSAProvider{
		key:    key,
		pubKey: keys.FromPublicKey(&key.PublicKey),
	}
}

// PublicKey returns the uncompressed public key bytes.
func (p *ECDSAProvider) PublicKey() []byte {
	return p.pubKey
}

// Sign implements Provider.
func (p *ECDSAProvider) Sign(entity Signable) (Signature, error) {
	hash, err := entity.SigningHash()
	if err != nil {
		return Signature{}, err
	}

	r, s, err := keys.Sign(p.key, hash)
	if err != nil {
		return Signature{}, fmt.Errorf("signing: %w", err)
	}

	return Signature{
		PublicKey: p.pubKey,
		Value:     keys.EncodeSignature(r, s),
	}, nil
}

// Verify implements Provider. The signature must have been produced by the
// owner of publicKey.
func (p *ECDSAProvider) Verify(entity Signable, sig Signature, publicKey []byte) bool {
	return Verify(entity, sig, publicKey)
}

// Verify checks a signature without needing a local key.
func Verify(entity Signable, sig Signature, publicKey []byte) bool {
	if len(publicKey) == 0 || !bytes.Equal(sig.PublicKey, publicKey) {
		return false
	}

	pub := keys.ToPublicKey(publicKey)
	if pub == nil || pub.X == nil {
		return false
	}

	hash, err := entity.SigningHash()
	if err != nil {
		return false
	}

	r, s, err := keys.DecodeSignature(sig.Value)
	if err != nil || r == nil || s == nil {
		return false
	}

	return keys.Verify(pub, hash, r, s)
}
