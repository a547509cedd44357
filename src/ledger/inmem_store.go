package ledger

import (
	"strconv"
	"sync"

	cm "github.com/ashwinbangalore/irohaBG/src/common"
)

// InmemStore keeps every block and the world state in memory. It is used in
// tests and by nodes started with the inmem store option.
type InmemStore struct {
	sync.RWMutex

	blocks     []*Block // blocks[i] has height i+1
	worldState *WorldState
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		blocks:     []*Block{},
		worldState: NewWorldState(),
	}
}

// Height implements Store.
func (s *InmemStore) Height() uint64 {
	s.RLock()
	defer s.RUnlock()
	return uint64(len(s.blocks))
}

// TopHash implements Store.
func (s *InmemStore) TopHash() []byte {
	s.RLock()
	defer s.RUnlock()
	if len(s.blocks) == 0 {
		return nil
	}
	return s.blocks[len(s.blocks)-1].Hash
}

// GetBlock implements Store.
func (s *InmemStore) GetBlock(height uint64) (*Block, error) {
	s.RLock()
	defer s.RUnlock()
	if height == 0 || height > uint64(len(s.blocks)) {
		return nil, cm.NewStoreErr("Block", cm.KeyNotFound, strconv.FormatUint(height, 10))
	}
	return s.blocks[height-1], nil
}

// GetBlocks implements Store.
func (s *InmemStore) GetBlocks(from, to uint64) ([]*Block, error) {
	s.RLock()
	defer s.RUnlock()

	if from == 0 || from > uint64(len(s.blocks)) {
		return nil, cm.NewStoreErr("Block", cm.KeyNotFound, strconv.FormatUint(from, 10))
	}
	if to > uint64(len(s.blocks)) {
		to = uint64(len(s.blocks))
	}
	if to < from {
		return []*Block{}, nil
	}

	res := make([]*Block, 0, to-from+1)
	res = append(res, s.blocks[from-1:to]...)
	return res, nil
}

// ApplyBlock implements Store.
func (s *InmemStore) ApplyBlock(block *Block) error {
	s.Lock()
	defer s.Unlock()

	var topHash []byte
	if len(s.blocks) > 0 {
		topHash = s.blocks[len(s.blocks)-1].Hash
	}

	if err := checkLinkage(block, uint64(len(s.blocks)), topHash); err != nil {
		return err
	}

	next, err := nextWorldState(s.worldState, block)
	if err != nil {
		return err
	}

	s.blocks = append(s.blocks, block)
	s.worldState = next

	return nil
}

// WorldStateSnapshot implements Store. The returned view is never mutated.
func (s *InmemStore) WorldStateSnapshot() ReadOnlyView {
	s.RLock()
	defer s.RUnlock()
	return s.worldState
}

// Close implements Store.
func (s *InmemStore) Close() error {
	return nil
}
