package consensus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	klog "github.com/Klingon-tech/hashchain/internal/log"
	"github.com/Klingon-tech/hashchain/pkg/block"
	"github.com/Klingon-tech/hashchain/pkg/crypto"
	"github.com/Klingon-tech/hashchain/pkg/types"
)

// PoW errors.
var (
	ErrInsufficientWork  = errors.New("digest does not meet difficulty target")
	ErrDifficultyTooHigh = errors.New("difficulty exceeds digest length")
	ErrSealCancelled     = errors.New("seal cancelled")
	ErrNonceExhausted    = errors.New("nonce space exhausted")
)

// cancelCheckMask sets how often the search polls for cancellation.
const cancelCheckMask = 0xFFFF

// PoW implements proof-of-work sealing. A digest satisfies Difficulty d when
// its hex rendering starts with d '0' characters.
type PoW struct {
	Difficulty uint64

	// Threads controls the number of parallel search goroutines.
	// 0 or 1 = single-threaded (default). Each goroutine searches a
	// strided partition of the nonce space.
	Threads int
}

// NewPoW creates a new PoW engine.
func NewPoW(difficulty uint64) (*PoW, error) {
	if difficulty > types.MaxDifficulty {
		return nil, fmt.Errorf("%w: %d > %d", ErrDifficultyTooHigh, difficulty, types.MaxDifficulty)
	}
	return &PoW{Difficulty: difficulty}, nil
}

// VerifyBlock checks that the stored digest matches the block contents
// and meets the difficulty target.
func (p *PoW) VerifyBlock(blk *block.Block) error {
	if err := blk.VerifyDigest(); err != nil {
		return err
	}
	if !blk.Digest.MeetsDifficulty(p.Difficulty) {
		return fmt.Errorf("%w: %s at difficulty %d", ErrInsufficientWork, blk.Digest, p.Difficulty)
	}
	return nil
}

// Seal runs the nonce search until the block digest meets the target.
func (p *PoW) Seal(blk *block.Block) error {
	return p.SealWithCancel(context.Background(), blk)
}

// SealWithCancel runs the nonce search with cancellation support.
// On cancellation the block is left unsealed and ErrSealCancelled is
// returned wrapping ctx.Err().
func (p *PoW) SealWithCancel(ctx context.Context, blk *block.Block) error {
	if blk == nil {
		return fmt.Errorf("nil block")
	}
	if err := blk.Validate(); err != nil {
		return err
	}
	if blk.IsSealed() {
		return block.ErrAlreadySealed
	}

	prefix := blk.SigningPrefix()

	var (
		nonce  uint64
		digest types.Hash
		err    error
	)
	if p.Threads <= 1 {
		nonce, digest, err = Search(ctx, prefix, p.Difficulty, 0, 1)
	} else {
		klog.Consensus.Debug().
			Uint64("index", blk.Header.Index).
			Uint64("difficulty", p.Difficulty).
			Int("threads", p.Threads).
			Msg("Parallel nonce search")
		nonce, digest, err = p.searchParallel(ctx, prefix, p.Threads)
	}
	if err != nil {
		if errors.Is(err, ErrSealCancelled) {
			klog.Consensus.Debug().Uint64("index", blk.Header.Index).Err(err).Msg("Seal cancelled")
		}
		return err
	}
	return blk.Seal(nonce, digest)
}

// Search tries nonces start, start+stride, ... appending each to prefix
// until the digest meets difficulty. It is pure and restartable: the same
// inputs always yield the same nonce.
func Search(ctx context.Context, prefix []byte, difficulty, start, stride uint64) (uint64, types.Hash, error) {
	if difficulty > types.MaxDifficulty {
		return 0, types.Hash{}, ErrDifficultyTooHigh
	}
	if stride == 0 {
		stride = 1
	}

	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)

	nonce := start
	for attempts := uint64(0); ; attempts++ {
		if attempts&cancelCheckMask == 0 {
			select {
			case <-ctx.Done():
				return 0, types.Hash{}, fmt.Errorf("%w: %w", ErrSealCancelled, ctx.Err())
			default:
			}
		}

		binary.LittleEndian.PutUint64(buf[len(prefix):], nonce)
		digest := crypto.Hash(buf)
		if digest.MeetsDifficulty(difficulty) {
			return nonce, digest, nil
		}

		// Overflow: would wrap around past max uint64.
		if nonce > math.MaxUint64-stride {
			return 0, types.Hash{}, ErrNonceExhausted
		}
		nonce += stride
	}
}

// searchParallel runs one Search per goroutine, goroutine i starting at
// nonce i with step threads. The first hit cancels the rest.
func (p *PoW) searchParallel(ctx context.Context, prefix []byte, threads int) (uint64, types.Hash, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		nonce  uint64
		digest types.Hash
		err    error
	}
	// Buffered so losers never block after the winner returns.
	results := make(chan result, threads)

	for i := 0; i < threads; i++ {
		go func(start uint64) {
			nonce, digest, err := Search(ctx, prefix, p.Difficulty, start, uint64(threads))
			results <- result{nonce: nonce, digest: digest, err: err}
		}(uint64(i))
	}

	var firstErr error
	for i := 0; i < threads; i++ {
		r := <-results
		if r.err == nil {
			return r.nonce, r.digest, nil
		}
		if firstErr == nil {
			firstErr = r.err
		}
	}
	return 0, types.Hash{}, firstErr
}
