package peers

import (
	"fmt"
	"testing"

	bkeys "github.com/ashwinbangalore/irohaBG/src/crypto/keys"
)

func makePeers(n int) []*Peer {
	peers := []*Peer{}
	for i := 0; i < n; i++ {
		key, _ := bkeys.GenerateECDSAKey()
		peers = append(peers, NewPeer(
			bkeys.PublicKeyHex(&key.PublicKey),
			fmt.Sprintf("addr%d", i),
			fmt.Sprintf("peer%d", i),
		))
	}
	return peers
}

func TestQuorum(t *testing.T) {
	cases := []struct {
		n, f, quorum int
	}{
		{1, 0, 1},
		{3, 0, 3},
		{4, 1, 3},
		{5, 1, 4},
		{7, 2, 5},
		{10, 3, 7},
	}

	for _, c := range cases {
		ps := NewPeerSet(makePeers(c.n))
		if ps.MaxFaulty() != c.f {
			t.Fatalf("N=%d: f should be %d, not %d", c.n, c.f, ps.MaxFaulty())
		}
		if ps.SuperMajority() != c.quorum {
			t.Fatalf("N=%d: quorum should be %d, not %d", c.n, c.quorum, ps.SuperMajority())
		}
		// two quorums must overlap in at least one honest peer
		if 2*ps.SuperMajority()-ps.Len() < ps.MaxFaulty()+1 {
			t.Fatalf("N=%d: quorums do not intersect in an honest peer", c.n)
		}
	}
}

func TestPeerSetCanonicalOrder(t *testing.T) {
	peers := makePeers(5)

	reversed := make([]*Peer, len(peers))
	for i, p := range peers {
		reversed[len(peers)-1-i] = NewPeer(p.PubKeyHex, p.NetAddr, p.Moniker)
	}

	a := NewPeerSet(peers)
	b := NewPeerSet(reversed)

	if a.Hex() != b.Hex() {
		t.Fatalf("peer sets built from the same peers should have the same hash")
	}

	for i := range a.Peers {
		if a.Peers[i].PubKeyHex != b.Peers[i].PubKeyHex {
			t.Fatalf("peer %d differs", i)
		}
		idx, ok := b.Index(a.Peers[i].PubKeyBytes())
		if !ok || idx != i {
			t.Fatalf("Index of peer %d should be %d, not %d", i, i, idx)
		}
	}

	if b.First().PubKeyHex != a.Peers[0].PubKeyHex {
		t.Fatalf("First should return the lowest public key")
	}

	dup := NewPeerSet(append(peers, NewPeer(peers[0].PubKeyHex, "other", "dup")))
	if dup.Len() != 5 {
		t.Fatalf("duplicate public keys should be removed, got %d peers", dup.Len())
	}

	key, _ := bkeys.GenerateECDSAKey()
	if a.Contains(bkeys.FromPublicKey(&key.PublicKey)) {
		t.Fatalf("unknown key should not be a member")
	}

	idx, others := ExcludePeer(a.Peers, a.Peers[2].PubKeyHex)
	if idx != 2 || len(others) != 4 {
		t.Fatalf("ExcludePeer returned %d, %d peers", idx, len(others))
	}
}
