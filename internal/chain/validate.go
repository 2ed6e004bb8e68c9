package chain

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/hashchain/internal/consensus"
	"github.com/Klingon-tech/hashchain/pkg/block"
	"github.com/Klingon-tech/hashchain/pkg/types"
)

// Validation errors.
var (
	ErrEmptyChain      = errors.New("chain has no blocks")
	ErrInvalidDigest   = block.ErrDigestMismatch
	ErrInvalidLinkage  = errors.New("previous digest does not match predecessor")
	ErrBadIndex        = errors.New("index does not follow predecessor")
	ErrParamsMismatch  = errors.New("stored chain parameters differ from configuration")
	ErrGenesisMismatch = errors.New("genesis block differs from configuration")
)

// ValidationError identifies the first block that failed validation.
type ValidationError struct {
	Index uint64 // Position of the block in the sequence.
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("block %d: %v", e.Index, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateBlocks checks a block sequence from genesis to tip and returns
// the first failure as a *ValidationError.
//
// Genesis must hash to its stored digest, carry index 0 and the zero
// previous digest. Every later block must hash to its stored digest,
// meet difficulty, point at its predecessor's digest and carry the next
// index.
func ValidateBlocks(blocks []*block.Block, difficulty uint64) error {
	pow, err := consensus.NewPoW(difficulty)
	if err != nil {
		return err
	}
	return validateBlocks(blocks, pow)
}

func validateBlocks(blocks []*block.Block, engine consensus.Engine) error {
	if len(blocks) == 0 {
		return ErrEmptyChain
	}

	// Genesis is sealed without work, so only its digest is checked.
	genesis := blocks[0]
	if err := genesis.VerifyDigest(); err != nil {
		return &ValidationError{Index: 0, Err: err}
	}
	if genesis.Header.PrevDigest != (types.Hash{}) {
		return &ValidationError{Index: 0, Err: ErrInvalidLinkage}
	}
	if !genesis.Header.IsGenesis() {
		return &ValidationError{Index: 0, Err: ErrBadIndex}
	}

	for i := 1; i < len(blocks); i++ {
		cur, prev := blocks[i], blocks[i-1]
		pos := uint64(i)
		if err := engine.VerifyBlock(cur); err != nil {
			return &ValidationError{Index: pos, Err: err}
		}
		if cur.Header.PrevDigest != prev.Digest {
			return &ValidationError{Index: pos, Err: ErrInvalidLinkage}
		}
		if cur.Header.Index != prev.Header.Index+1 {
			return &ValidationError{Index: pos, Err: ErrBadIndex}
		}
	}
	return nil
}

// Validate checks the whole chain. See ValidateBlocks.
func (c *Chain) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return validateBlocks(c.blocks, c.engine)
}

// IsValid reports whether Validate passes.
func (c *Chain) IsValid() bool {
	return c.Validate() == nil
}
