package node

import (
	"crypto/ecdsa"

	"github.com/ashwinbangalore/irohaBG/src/crypto"
	"github.com/ashwinbangalore/irohaBG/src/crypto/keys"
)

// Validator holds the identity of the local peer. It is read concurrently by
// the pipeline and the RPC handlers, so every derived value is computed once
// in NewValidator.
type Validator struct {
	Key     *ecdsa.PrivateKey
	Moniker string

	id       uint32
	pubBytes []byte
	pubHex   string
	provider *crypto.ECDSAProvider
}

// NewValidator ...
func NewValidator(key *ecdsa.PrivateKey, moniker string) *Validator {
	pubBytes := keys.FromPublicKey(&key.PublicKey)

	return &Validator{
		Key:      key,
		Moniker:  moniker,
		id:       keys.PublicKeyID(pubBytes),
		pubBytes: pubBytes,
		pubHex:   keys.PublicKeyHex(&key.PublicKey),
		provider: crypto.NewECDSAProvider(key),
	}
}

// ID returns an ID for the validator
func (v *Validator) ID() uint32 {
	return v.id
}

// PublicKeyBytes returns the validator's public key as a byte array
func (v *Validator) PublicKeyBytes() []byte {
	return v.pubBytes
}

// PublicKeyHex returns the validator's public key as a hex string
func (v *Validator) PublicKeyHex() string {
	return v.pubHex
}

// Provider signs blocks and votes with the validator's key.
func (v *Validator) Provider() crypto.Provider {
	return v.provider
}
