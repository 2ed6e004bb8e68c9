// Package chain implements the append-only sealed block sequence.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/hashchain/internal/consensus"
	"github.com/Klingon-tech/hashchain/internal/storage"
	"github.com/Klingon-tech/hashchain/pkg/block"
	"github.com/Klingon-tech/hashchain/pkg/tx"
)

// ErrBlockNotFound is returned for an index beyond the tip.
var ErrBlockNotFound = errors.New("block not found")

// PendingHandler is called after a record is added to the pending buffer.
type PendingHandler func(rec *tx.Transaction)

// SealHandler is called after a sealed block is appended.
type SealHandler func(blk *block.Block)

// Chain is an ordered sequence of sealed blocks plus a pending buffer.
// The genesis block is always present.
type Chain struct {
	sealMu sync.Mutex   // Serializes SealPending.
	mu     sync.RWMutex // Protects blocks, pending and the handlers.

	blocks  []*block.Block
	pending []*tx.Transaction

	params Params
	engine consensus.Engine
	store  *BlockStore // nil for in-memory chains.
	now    func() time.Time

	pendingHandler PendingHandler
	sealHandler    SealHandler
}

// New creates an in-memory chain holding only the genesis block.
func New(p Params) (*Chain, error) {
	c, err := newChain(p)
	if err != nil {
		return nil, err
	}
	c.blocks = []*block.Block{CreateGenesisBlock(c.params)}
	return c, nil
}

func newChain(p Params) (*Chain, error) {
	p = p.withDefaults()
	pow, err := consensus.NewPoW(p.Difficulty)
	if err != nil {
		return nil, err
	}
	pow.Threads = p.Threads
	return &Chain{
		params: p,
		engine: pow,
		now:    time.Now,
	}, nil
}

// SetPendingHandler sets the callback for records added via AddPending.
func (c *Chain) SetPendingHandler(fn PendingHandler) {
	c.mu.Lock()
	c.pendingHandler = fn
	c.mu.Unlock()
}

// SetSealHandler sets the callback for blocks appended by SealPending.
// The handler receives a copy of the block.
func (c *Chain) SetSealHandler(fn SealHandler) {
	c.mu.Lock()
	c.sealHandler = fn
	c.mu.Unlock()
}

// Params returns the chain parameters.
func (c *Chain) Params() Params {
	return c.params
}

// Difficulty returns the number of leading zero hex digits a sealed digest needs.
func (c *Chain) Difficulty() uint64 {
	return c.params.Difficulty
}

// SealingReward returns the amount paid to the sealer of each block.
func (c *Chain) SealingReward() uint64 {
	return c.params.SealingReward
}

// AddPending appends a copy of rec to the pending buffer. No validation
// is performed. A nil record is ignored.
func (c *Chain) AddPending(rec *tx.Transaction) {
	if rec == nil {
		return
	}
	c.mu.Lock()
	c.pending = append(c.pending, rec.Clone())
	handler := c.pendingHandler
	c.mu.Unlock()

	if handler != nil {
		handler(rec.Clone())
	}
}

// SealPending seals the pending records into a new block paid to sealer
// and appends it. The pending buffer is swapped for an empty one on entry,
// so records added during the search go into the next block.
//
// On cancellation or a storage failure nothing is appended and the taken
// records are put back at the front of the pending buffer.
func (c *Chain) SealPending(ctx context.Context, sealer string) (*block.Block, error) {
	c.sealMu.Lock()
	defer c.sealMu.Unlock()

	c.mu.Lock()
	taken := c.pending
	c.pending = nil
	tip := c.tipLocked()
	c.mu.Unlock()

	payload := make(block.Transactions, 0, len(taken)+1)
	payload = append(payload, tx.NewReward(sealer, c.params.SealingReward))
	payload = append(payload, taken...)

	blk := block.New(tip.Header.Index+1, c.timestamp(tip), payload, tip.Digest)
	if err := c.engine.SealWithCancel(ctx, blk); err != nil {
		c.restorePending(taken)
		return nil, fmt.Errorf("seal block %d: %w", blk.Header.Index, err)
	}

	c.mu.Lock()
	if c.store != nil {
		if err := c.store.PutBlock(blk); err != nil {
			c.mu.Unlock()
			c.restorePending(taken)
			return nil, fmt.Errorf("store block %d: %w", blk.Header.Index, err)
		}
	}
	c.blocks = append(c.blocks, blk)
	handler := c.sealHandler
	c.mu.Unlock()

	if handler != nil {
		handler(blk.Clone())
	}
	return blk.Clone(), nil
}

// restorePending puts taken back ahead of records added since.
func (c *Chain) restorePending(taken []*tx.Transaction) {
	if len(taken) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(taken[:len(taken):len(taken)], c.pending...)
}

// timestamp returns wall-clock milliseconds, never earlier than the tip.
func (c *Chain) timestamp(tip *block.Block) uint64 {
	ts := uint64(c.now().UnixMilli())
	if ts < tip.Header.Timestamp {
		ts = tip.Header.Timestamp
	}
	return ts
}

// tipLocked returns the last block. Caller must hold mu.
func (c *Chain) tipLocked() *block.Block {
	if len(c.blocks) == 0 {
		panic(ErrEmptyChain)
	}
	return c.blocks[len(c.blocks)-1]
}

// Tip returns a copy of the last block.
func (c *Chain) Tip() *block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tipLocked().Clone()
}

// Height returns the index of the tip.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tipLocked().Header.Index
}

// Len returns the number of blocks, genesis included.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Block returns a copy of the block at index.
func (c *Chain) Block(index uint64) (*block.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index >= uint64(len(c.blocks)) {
		return nil, fmt.Errorf("%w: index %d, height %d", ErrBlockNotFound, index, len(c.blocks)-1)
	}
	return c.blocks[index].Clone(), nil
}

// Blocks returns copies of all blocks in order.
func (c *Chain) Blocks() []*block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*block.Block, len(c.blocks))
	for i, b := range c.blocks {
		out[i] = b.Clone()
	}
	return out
}

// Pending returns copies of the records waiting to be sealed.
func (c *Chain) Pending() []*tx.Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*tx.Transaction, len(c.pending))
	for i, t := range c.pending {
		out[i] = t.Clone()
	}
	return out
}

// PendingCount returns the number of records waiting to be sealed.
func (c *Chain) PendingCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}

// Open loads the chain kept in db, or initializes db with a genesis block
// when it is empty. A stored chain must have been created with the same
// rules and must pass full validation.
func Open(p Params, db storage.DB) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	c, err := newChain(p)
	if err != nil {
		return nil, err
	}
	store := NewBlockStore(db)
	genesis := CreateGenesisBlock(c.params)

	stored, found, err := store.GetParams()
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	if !found {
		if err := store.Init(c.params, genesis); err != nil {
			return nil, fmt.Errorf("store genesis: %w", err)
		}
		c.blocks = []*block.Block{genesis}
		c.store = store
		return c, nil
	}

	if !stored.SameRules(c.params) {
		return nil, fmt.Errorf("%w: stored difficulty=%d reward=%d, configured difficulty=%d reward=%d",
			ErrParamsMismatch, stored.Difficulty, stored.SealingReward, c.params.Difficulty, c.params.SealingReward)
	}

	blocks, err := store.LoadBlocks()
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	if err := validateBlocks(blocks, c.engine); err != nil {
		return nil, fmt.Errorf("stored chain invalid: %w", err)
	}
	if blocks[0].Digest != genesis.Digest {
		return nil, fmt.Errorf("%w: stored %s, expected %s", ErrGenesisMismatch, blocks[0].Digest, genesis.Digest)
	}

	c.blocks = blocks
	c.store = store
	return c, nil
}
