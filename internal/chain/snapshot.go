package chain

import (
	"fmt"

	"github.com/Klingon-tech/hashchain/pkg/block"
)

// Snapshot is the serialized form of a chain. Pending records are not
// part of it.
type Snapshot struct {
	Difficulty    uint64         `json:"difficulty"`
	SealingReward uint64         `json:"sealing_reward"`
	Blocks        []*block.Block `json:"blocks"`
}

// Snapshot returns a copy of the chain's rules and blocks.
func (c *Chain) Snapshot() *Snapshot {
	return &Snapshot{
		Difficulty:    c.params.Difficulty,
		SealingReward: c.params.SealingReward,
		Blocks:        c.Blocks(),
	}
}

// FromSnapshot rebuilds an in-memory chain from s. The genesis rules are
// taken from the first block and the whole sequence must validate.
func FromSnapshot(s *Snapshot, threads int) (*Chain, error) {
	if s == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}
	if err := ValidateBlocks(s.Blocks, s.Difficulty); err != nil {
		return nil, fmt.Errorf("snapshot invalid: %w", err)
	}

	genesis := s.Blocks[0]
	text, ok := genesis.Payload.(block.Text)
	if !ok {
		return nil, fmt.Errorf("%w: payload is not text", ErrGenesisMismatch)
	}
	c, err := newChain(Params{
		Difficulty:       s.Difficulty,
		SealingReward:    s.SealingReward,
		GenesisTimestamp: genesis.Header.Timestamp,
		GenesisData:      string(text),
		Threads:          threads,
	})
	if err != nil {
		return nil, err
	}

	c.blocks = make([]*block.Block, len(s.Blocks))
	for i, b := range s.Blocks {
		c.blocks[i] = b.Clone()
	}
	return c, nil
}
