package peers

import (
	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto/keys"
)

// Peer is a member of the network: a public key, the address where its
// transport listens, and an optional user-friendly name.
type Peer struct {
	NetAddr   string
	PubKeyHex string
	Moniker   string

	id       uint32
	pubBytes []byte
}

// NewPeer ...
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	return &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
		Moniker:   moniker,
	}
}

// ID returns an uint32 derived from the public key. It is only used as a
// compact key in logs and maps.
func (p *Peer) ID() uint32 {
	if p.id == 0 {
		p.id = keys.PublicKeyID(p.PubKeyBytes())
	}
	return p.id
}

// PubKeyString returns the upper-case hex form of the public key.
func (p *Peer) PubKeyString() string {
	return p.PubKeyHex
}

// PubKeyBytes returns the decoded public key, or nil if PubKeyHex is not a
// valid 0X-prefixed hex string.
func (p *Peer) PubKeyBytes() []byte {
	if p.pubBytes == nil {
		b, err := common.DecodeFromString(p.PubKeyHex)
		if err != nil {
			return nil
		}
		p.pubBytes = b
	}
	return p.pubBytes
}

// ExcludePeer is used to exclude a single peer, by public key, from a list of
// peers.
func ExcludePeer(peers []*Peer, pubKeyHex string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.PubKeyHex != pubKeyHex {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
