package yac

import (
	"sort"

	"github.com/bits-and-blooms/bitset"
)

// Result of evaluating a round.
type Result int

const (
	// Pending means a supermajority is still reachable.
	Pending Result = iota
	// Agreed means a hash holds a supermajority.
	Agreed
	// Unreachable means no hash can reach a supermajority any more.
	Unreachable
)

// AddStatus ...
type AddStatus int

const (
	// Added ...
	Added AddStatus = iota
	// Duplicate means the peer already cast the same vote.
	Duplicate
	// Equivocation means the peer already voted for another hash in this
	// round. The second vote is dropped.
	Equivocation
)

// roundVotes is the tally of one round.
type roundVotes struct {
	voters  *bitset.BitSet
	votes   map[uint]Vote
	tallies map[string]*bitset.BitSet // hash hex => voters
}

func newRoundVotes(n int) *roundVotes {
	return &roundVotes{
		voters:  bitset.New(uint(n)),
		votes:   make(map[uint]Vote),
		tallies: make(map[string]*bitset.BitSet),
	}
}

// RoundTable accumulates votes per round for a peer set of size n. A round's
// entry is evicted once the round is decided.
type RoundTable struct {
	n      int
	quorum int
	rounds map[uint64]*roundVotes
}

// NewRoundTable ...
func NewRoundTable(n, quorum int) *RoundTable {
	return &RoundTable{
		n:      n,
		quorum: quorum,
		rounds: make(map[uint64]*roundVotes),
	}
}

// Add records the vote of the peer at index idx.
func (t *RoundTable) Add(idx int, v Vote) AddStatus {
	rv, ok := t.rounds[v.Round]
	if !ok {
		rv = newRoundVotes(t.n)
		t.rounds[v.Round] = rv
	}

	i := uint(idx)
	if rv.voters.Test(i) {
		if prev := rv.votes[i]; prev.HashHex() == v.HashHex() {
			return Duplicate
		}
		return Equivocation
	}

	rv.voters.Set(i)
	rv.votes[i] = v

	key := v.HashHex()
	tally, ok := rv.tallies[key]
	if !ok {
		tally = bitset.New(uint(t.n))
		rv.tallies[key] = tally
	}
	tally.Set(i)

	return Added
}

// Evaluate returns the state of a round and, when Agreed, the hash that holds
// the supermajority.
func (t *RoundTable) Evaluate(round uint64) (Result, string) {
	rv, ok := t.rounds[round]
	if !ok {
		if t.quorum > t.n {
			return Unreachable, ""
		}
		return Pending, ""
	}

	best, bestCount := "", uint(0)
	for hash, tally := range rv.tallies {
		c := tally.Count()
		if c > bestCount || (c == bestCount && hash < best) {
			best, bestCount = hash, c
		}
	}

	if int(bestCount) >= t.quorum {
		return Agreed, best
	}

	remaining := uint(t.n) - rv.voters.Count()
	if int(bestCount+remaining) < t.quorum {
		return Unreachable, ""
	}

	return Pending, ""
}

// Votes returns the votes for a hash in a round, ordered by peer index.
func (t *RoundTable) Votes(round uint64, hashHex string) []Vote {
	rv, ok := t.rounds[round]
	if !ok {
		return nil
	}
	tally, ok := rv.tallies[hashHex]
	if !ok {
		return nil
	}

	idxs := []uint{}
	for i, ok := tally.NextSet(0); ok; i, ok = tally.NextSet(i + 1) {
		idxs = append(idxs, i)
	}
	sort.Slice(idxs, func(a, b int) bool { return idxs[a] < idxs[b] })

	res := make([]Vote, 0, len(idxs))
	for _, i := range idxs {
		res = append(res, rv.votes[i])
	}
	return res
}

// VoterCount returns the number of distinct peers that voted in a round.
func (t *RoundTable) VoterCount(round uint64) int {
	rv, ok := t.rounds[round]
	if !ok {
		return 0
	}
	return int(rv.voters.Count())
}

// Rounds returns the rounds that hold votes, in increasing order.
func (t *RoundTable) Rounds() []uint64 {
	res := make([]uint64, 0, len(t.rounds))
	for r := range t.rounds {
		res = append(res, r)
	}
	sort.Slice(res, func(a, b int) bool { return res[a] < res[b] })
	return res
}

// Evict drops every round up to and including round.
func (t *RoundTable) Evict(round uint64) {
	for r := range t.rounds {
		if r <= round {
			delete(t.rounds, r)
		}
	}
}

// Has reports whether round holds votes.
func (t *RoundTable) Has(round uint64) bool {
	_, ok := t.rounds[round]
	return ok
}

// Len returns the number of rounds held.
func (t *RoundTable) Len() int {
	return len(t.rounds)
}
