package chain

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/hashchain/internal/storage"
	"github.com/Klingon-tech/hashchain/pkg/block"
)

// Key prefixes and state keys for the block store.
var (
	prefixBlock = []byte("b/")       // b/<index(8)> -> block JSON
	keyTip      = []byte("s/tip")    // tip index(8)
	keyParams   = []byte("s/params") // params JSON
)

// BlockStore persists blocks and chain metadata to a storage.DB.
type BlockStore struct {
	db storage.DB
}

// NewBlockStore creates a block store backed by the given database.
func NewBlockStore(db storage.DB) *BlockStore {
	return &BlockStore{db: db}
}

// putter is the write side shared by storage.DB and storage.Batch.
type putter interface {
	Put(key, value []byte) error
}

// update runs fn against one batch when the database supports batches,
// so its writes land together. Otherwise fn writes straight to the database.
func (bs *BlockStore) update(fn func(w putter) error) error {
	b, ok := bs.db.(storage.Batcher)
	if !ok {
		return fn(bs.db)
	}
	batch := b.NewBatch()
	defer batch.Discard()
	if err := fn(batch); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// PutBlock stores a block under its index and moves the tip to it.
func (bs *BlockStore) PutBlock(blk *block.Block) error {
	return bs.update(func(w putter) error {
		return putBlock(w, blk)
	})
}

// Init records the rules of a fresh store together with its genesis block.
func (bs *BlockStore) Init(p Params, genesis *block.Block) error {
	return bs.update(func(w putter) error {
		if err := putParams(w, p); err != nil {
			return err
		}
		return putBlock(w, genesis)
	})
}

func putBlock(w putter, blk *block.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("block marshal: %w", err)
	}
	var tip [8]byte
	binary.BigEndian.PutUint64(tip[:], blk.Header.Index)

	if err := w.Put(blockKey(blk.Header.Index), data); err != nil {
		return fmt.Errorf("block put: %w", err)
	}
	if err := w.Put(keyTip, tip[:]); err != nil {
		return fmt.Errorf("set tip: %w", err)
	}
	return nil
}

// GetBlock retrieves the block at index.
func (bs *BlockStore) GetBlock(index uint64) (*block.Block, error) {
	data, err := bs.db.Get(blockKey(index))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: index %d", ErrBlockNotFound, index)
		}
		return nil, fmt.Errorf("block get %d: %w", index, err)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("block unmarshal %d: %w", index, err)
	}
	return &blk, nil
}

// GetTip returns the stored tip index. found is false for a fresh store.
func (bs *BlockStore) GetTip() (height uint64, found bool, err error) {
	data, err := bs.db.Get(keyTip)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get tip: %w", err)
	}
	if len(data) != 8 {
		return 0, false, fmt.Errorf("corrupt tip: got %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), true, nil
}

// LoadBlocks reads every block from genesis to the stored tip.
func (bs *BlockStore) LoadBlocks() ([]*block.Block, error) {
	tip, found, err := bs.GetTip()
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrEmptyChain
	}
	blocks := make([]*block.Block, 0, tip+1)
	for i := uint64(0); i <= tip; i++ {
		blk, err := bs.GetBlock(i)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, blk)
	}
	return blocks, nil
}

// putParams records the rules the stored chain was created with.
func putParams(w putter, p Params) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("params marshal: %w", err)
	}
	if err := w.Put(keyParams, data); err != nil {
		return fmt.Errorf("params put: %w", err)
	}
	return nil
}

// GetParams returns the stored rules. found is false for a fresh store.
func (bs *BlockStore) GetParams() (p Params, found bool, err error) {
	data, err := bs.db.Get(keyParams)
	if errors.Is(err, storage.ErrNotFound) {
		return Params{}, false, nil
	}
	if err != nil {
		return Params{}, false, fmt.Errorf("params get: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return Params{}, false, fmt.Errorf("params unmarshal: %w", err)
	}
	return p, true, nil
}

func blockKey(index uint64) []byte {
	key := make([]byte, len(prefixBlock)+8)
	copy(key, prefixBlock)
	binary.BigEndian.PutUint64(key[len(prefixBlock):], index)
	return key
}
