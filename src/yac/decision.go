package yac

import (
	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/ledger"
)

// Outcome of a round.
type Outcome int

const (
	// Commit means a supermajority agreed on a block hash.
	Commit Outcome = iota
	// Reject means the round ended without agreement.
	Reject
)

func (o Outcome) String() string {
	switch o {
	case Commit:
		return "Commit"
	case Reject:
		return "Reject"
	default:
		return "Unknown"
	}
}

// Decision is the outcome of a consensus round. For a Commit, Votes holds the
// supermajority that confirms Hash, and Block is the local candidate when it
// matches Hash (nil otherwise, in which case the block must be loaded from one
// of the voters).
type Decision struct {
	Outcome Outcome
	Round   uint64
	Height  uint64
	Hash    []byte
	Votes   []Vote
	Block   *ledger.Block
	// Late is set on a commit that arrives for a round this peer had already
	// rejected.
	Late bool
}

// HashHex ...
func (d *Decision) HashHex() string {
	return common.EncodeToString(d.Hash)
}

// Voters returns the public keys of the peers that signed the commit votes.
func (d *Decision) Voters() [][]byte {
	res := make([][]byte, 0, len(d.Votes))
	for _, v := range d.Votes {
		res = append(res, v.Voter())
	}
	return res
}
