package peers

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto"
)

//PeerSet is the fixed, ordered set of Peers forming the network. It is never
//mutated after construction.
type PeerSet struct {
	Peers    []*Peer          `json:"peers"`
	ByPubKey map[string]*Peer `json:"-"`
	ByID     map[uint32]*Peer `json:"-"`

	index map[string]int
	hash  []byte
	hex   string
}

/* Constructors */

//NewPeerSet creates a new PeerSet from a list of Peers. Peers are sorted by
//public key and duplicates are removed so that every peer computes the same
//order from the same list.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByPubKey: make(map[string]*Peer),
		ByID:     make(map[uint32]*Peer),
		index:    make(map[string]int),
	}

	sorted := make([]*Peer, 0, len(peers))
	for _, peer := range peers {
		peer.PubKeyHex = normalizeHex(peer.PubKeyHex)
		if _, ok := peerSet.ByPubKey[peer.PubKeyHex]; ok {
			continue
		}
		peerSet.ByPubKey[peer.PubKeyHex] = peer
		sorted = append(sorted, peer)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PubKeyHex < sorted[j].PubKeyHex
	})

	// ID caches the decoded key, before the set is shared between goroutines
	for i, peer := range sorted {
		peerSet.ByID[peer.ID()] = peer
		peerSet.index[peer.PubKeyHex] = i
	}

	peerSet.Peers = sorted

	return peerSet
}

//NewPeerSetFromPeerSliceBytes creates a new PeerSet from a JSON list of peers
func NewPeerSetFromPeerSliceBytes(peerSliceBytes []byte) (*PeerSet, error) {
	peers := []*Peer{}

	if err := json.Unmarshal(peerSliceBytes, &peers); err != nil {
		return nil, err
	}

	return NewPeerSet(peers), nil
}

func normalizeHex(pubKeyHex string) string {
	return "0X" + strings.TrimPrefix(strings.ToUpper(pubKeyHex), "0X")
}

/* ToSlice Methods */

//PubKeys returns the PeerSet's slice of public keys
func (peerSet *PeerSet) PubKeys() []string {
	res := []string{}

	for _, peer := range peerSet.Peers {
		res = append(res, peer.PubKeyString())
	}

	return res
}

//IDs returns the PeerSet's slice of IDs
func (peerSet *PeerSet) IDs() []uint32 {
	res := []uint32{}

	for _, peer := range peerSet.Peers {
		res = append(res, peer.ID())
	}

	return res
}

/* Lookups */

//Index returns the position of the peer with the given public key bytes in
//the canonical order, and false if it is not a member.
func (peerSet *PeerSet) Index(pubKey []byte) (int, bool) {
	i, ok := peerSet.index[common.EncodeToString(pubKey)]
	return i, ok
}

//Contains returns true if the public key belongs to a member of the set.
func (peerSet *PeerSet) Contains(pubKey []byte) bool {
	_, ok := peerSet.Index(pubKey)
	return ok
}

//ByPubKeyBytes returns the Peer owning the given public key.
func (peerSet *PeerSet) ByPubKeyBytes(pubKey []byte) (*Peer, bool) {
	p, ok := peerSet.ByPubKey[common.EncodeToString(pubKey)]
	return p, ok
}

//First returns the first peer in the canonical order.
func (peerSet *PeerSet) First() *Peer {
	if len(peerSet.Peers) == 0 {
		return nil
	}
	return peerSet.Peers[0]
}

/* Utilities */

//Len returns the number of Peers in the PeerSet
func (peerSet *PeerSet) Len() int {
	return len(peerSet.Peers)
}

// Hash uniquely identifies a PeerSet. It is computed by hashing (SHA256) their
// public keys together, one by one.
func (peerSet *PeerSet) Hash() ([]byte, error) {
	if len(peerSet.hash) == 0 {
		hash := []byte{}
		for _, p := range peerSet.Peers {
			hash = crypto.SimpleHashFromTwoHashes(hash, p.PubKeyBytes())
		}
		peerSet.hash = hash
	}
	return peerSet.hash, nil
}

//Hex is the hexadecimal representation of Hash
func (peerSet *PeerSet) Hex() string {
	if len(peerSet.hex) == 0 {
		hash, _ := peerSet.Hash()
		peerSet.hex = common.EncodeToString(hash)
	}
	return peerSet.hex
}

//Marshal marshals the peerset
func (peerSet *PeerSet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(peerSet.Peers); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

//MaxFaulty returns f, the number of faulty peers the set tolerates:
//N >= 3f+1.
func (peerSet *PeerSet) MaxFaulty() int {
	if peerSet.Len() == 0 {
		return 0
	}
	return (peerSet.Len() - 1) / 3
}

//SuperMajority returns the number of matching votes that forms a quorum
//(+2/3). It equals 2f+1 when N = 3f+1 and keeps any two quorums overlapping
//in at least f+1 peers for other values of N.
func (peerSet *PeerSet) SuperMajority() int {
	return 2*peerSet.Len()/3 + 1
}

//Query gives the consensus components access to the current peer list.
type Query interface {
	CurrentPeers() *PeerSet
}

//StaticQuery is a Query over a PeerSet that never changes.
type StaticQuery struct {
	peerSet *PeerSet
}

//NewStaticQuery ...
func NewStaticQuery(peerSet *PeerSet) *StaticQuery {
	return &StaticQuery{peerSet: peerSet}
}

//CurrentPeers implements Query
func (q *StaticQuery) CurrentPeers() *PeerSet {
	return q.peerSet
}
