package ledger

import (
	"bytes"
	"strconv"

	cm "github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto"
)

// Store persists committed blocks and maintains the world state they
// produce. ApplyBlock is only ever called by one goroutine at a time.
type Store interface {
	// Height is the height of the last committed block, 0 if the store is
	// empty.
	Height() uint64
	// TopHash is the hash of the last committed block.
	TopHash() []byte
	GetBlock(height uint64) (*Block, error)
	// GetBlocks returns the blocks in [from, to], stopping at the current
	// height.
	GetBlocks(from, to uint64) ([]*Block, error)
	// ApplyBlock checks that block extends the chain, executes its
	// transactions on a copy of the world state, persists the block and
	// swaps in the new world state.
	ApplyBlock(block *Block) error
	WorldStateSnapshot() ReadOnlyView
	Close() error
}

// checkLinkage verifies that block can be appended at height+1 after topHash.
func checkLinkage(block *Block, height uint64, topHash []byte) error {
	key := strconv.FormatUint(block.Height(), 10)

	if block.Height() <= height {
		return cm.NewStoreErr("Block", cm.KeyAlreadyExists, key)
	}
	if block.Height() > height+1 {
		return cm.NewStoreErr("Block", cm.SkippedIndex, key)
	}

	expectedPrev := topHash
	if height == 0 {
		expectedPrev = crypto.ZeroHash()
	}
	if !bytes.Equal(block.PrevHash(), expectedPrev) {
		return cm.NewStoreErr("Block", cm.HashMismatch, key)
	}

	if err := block.VerifyHash(); err != nil {
		return cm.NewStoreErr("Block", cm.HashMismatch, key)
	}

	return nil
}

// nextWorldState executes the transactions of block on a copy of current.
func nextWorldState(current *WorldState, block *Block) (*WorldState, error) {
	next := current.Copy()

	for _, tx := range block.Transactions() {
		var err error
		if block.Height() == GenesisHeight {
			err = next.applyGenesis(tx)
		} else {
			err = next.ApplyTransaction(tx)
		}
		if err != nil {
			return nil, err
		}
	}

	return next, nil
}
