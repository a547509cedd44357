package ledger

import (
	"fmt"
	"strconv"
	"sync"

	cm "github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"
)

const (
	blockPrefix = "block"
)

// BadgerStore persists blocks in a Badger database, keyed by height, and keeps
// the most recent ones in a RollingIndex. The world state is not persisted: it
// is rebuilt by replaying the blocks when the store is opened.
type BadgerStore struct {
	sync.RWMutex

	db         *badger.DB
	path       string
	cache      *cm.RollingIndex[*Block]
	height     uint64
	topHash    []byte
	worldState *WorldState
	logger     *logrus.Entry
}

// NewBadgerStore opens an existing database or creates a new one if nothing is
// found in path, and replays the stored blocks.
func NewBadgerStore(cacheSize int, path string, logger *logrus.Entry) (*BadgerStore, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithTruncate(true).
		WithLogger(logger.WithFields(logrus.Fields{"ns": "badger"}))

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, StorageError{Op: "open", Err: err}
	}

	store := &BadgerStore{
		db:         handle,
		path:       path,
		cache:      cm.NewRollingIndex[*Block]("BlockCache", cacheSize),
		worldState: NewWorldState(),
		logger:     logger,
	}

	if err := store.load(); err != nil {
		handle.Close()
		return nil, err
	}

	return store, nil
}

/*******************************************************************************
Keys
*******************************************************************************/

func blockKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%s_%020d", blockPrefix, height))
}

/*******************************************************************************
Store Methods
*******************************************************************************/

// Height implements Store.
func (s *BadgerStore) Height() uint64 {
	s.RLock()
	defer s.RUnlock()
	return s.height
}

// TopHash implements Store.
func (s *BadgerStore) TopHash() []byte {
	s.RLock()
	defer s.RUnlock()
	return s.topHash
}

// GetBlock implements Store. Recent blocks are served from the cache.
func (s *BadgerStore) GetBlock(height uint64) (*Block, error) {
	s.RLock()
	current := s.height
	block, err := s.cache.GetItem(height)
	s.RUnlock()

	if err == nil {
		return block, nil
	}

	if height == 0 || height > current {
		return nil, cm.NewStoreErr("Block", cm.KeyNotFound, strconv.FormatUint(height, 10))
	}

	block, err = s.dbGetBlock(height)
	return block, mapError(err, "Block", strconv.FormatUint(height, 10))
}

// GetBlocks implements Store.
func (s *BadgerStore) GetBlocks(from, to uint64) ([]*Block, error) {
	height := s.Height()

	if from == 0 || from > height {
		return nil, cm.NewStoreErr("Block", cm.KeyNotFound, strconv.FormatUint(from, 10))
	}
	if to > height {
		to = height
	}

	res := []*Block{}
	for h := from; h <= to; h++ {
		b, err := s.GetBlock(h)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, nil
}

// ApplyBlock implements Store. The block is written to the database before the
// new world state becomes visible.
func (s *BadgerStore) ApplyBlock(block *Block) error {
	s.Lock()
	defer s.Unlock()

	if err := checkLinkage(block, s.height, s.topHash); err != nil {
		return err
	}

	next, err := nextWorldState(s.worldState, block)
	if err != nil {
		return err
	}

	if err := s.dbSetBlock(block); err != nil {
		return StorageError{Op: fmt.Sprintf("write block %d", block.Height()), Err: err}
	}

	s.commit(block, next)

	return nil
}

func (s *BadgerStore) commit(block *Block, next *WorldState) {
	if err := s.cache.Set(block, block.Height()); err != nil {
		s.logger.WithError(err).Warn("Caching block")
	}
	s.height = block.Height()
	s.topHash = block.Hash
	s.worldState = next
}

// WorldStateSnapshot implements Store.
func (s *BadgerStore) WorldStateSnapshot() ReadOnlyView {
	s.RLock()
	defer s.RUnlock()
	return s.worldState
}

// Close closes the underlying Badger database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath returns the full path of the underlying Badger database directory.
func (s *BadgerStore) StorePath() string {
	return s.path
}

/*******************************************************************************
DB Methods
*******************************************************************************/

// load replays every stored block, in height order, onto an empty world
// state.
func (s *BadgerStore) load() error {
	prefix := []byte(blockPrefix + "_")

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			block := new(Block)
			if err := block.Unmarshal(data); err != nil {
				return err
			}

			if err := checkLinkage(block, s.height, s.topHash); err != nil {
				return fmt.Errorf("replaying block %d: %w", block.Height(), err)
			}

			next, err := nextWorldState(s.worldState, block)
			if err != nil {
				return fmt.Errorf("replaying block %d: %w", block.Height(), err)
			}

			s.commit(block, next)
		}
		return nil
	})
	if err != nil {
		return StorageError{Op: "load", Err: err}
	}

	s.logger.WithField("height", s.height).Debug("Loaded ledger")

	return nil
}

func (s *BadgerStore) dbGetBlock(height uint64) (*Block, error) {
	var blockBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(height))
		if err != nil {
			return err
		}
		blockBytes, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	block := new(Block)
	if err := block.Unmarshal(blockBytes); err != nil {
		return nil, err
	}

	return block, nil
}

func (s *BadgerStore) dbSetBlock(block *Block) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	val, err := block.Marshal()
	if err != nil {
		return err
	}

	if err := tx.Set(blockKey(block.Height()), val); err != nil {
		return err
	}

	return tx.Commit()
}

func isDBKeyNotFound(err error) bool {
	return err != nil && err.Error() == badger.ErrKeyNotFound.Error()
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
