// Package miner seals pending records into blocks on a fixed interval.
package miner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/hashchain/internal/consensus"
	"github.com/Klingon-tech/hashchain/internal/log"
	"github.com/Klingon-tech/hashchain/pkg/block"
)

// ErrNothingToSeal is returned by SealOnce when the pending buffer is
// empty and empty blocks are not allowed.
var ErrNothingToSeal = errors.New("no pending records to seal")

// Chain is the part of a chain the miner drives.
type Chain interface {
	SealPending(ctx context.Context, sealer string) (*block.Block, error)
	PendingCount() int
}

// Config holds miner settings.
type Config struct {
	Sealer     string        // Recipient of sealing rewards.
	Interval   time.Duration // Time between sealing attempts.
	AllowEmpty bool          // Seal blocks that only carry the reward.
}

// Miner periodically seals the chain's pending records.
type Miner struct {
	chain  Chain
	cfg    Config
	logger zerolog.Logger

	sealed atomic.Uint64
}

// New creates a miner for chain.
func New(chain Chain, cfg Config) (*Miner, error) {
	if chain == nil {
		return nil, fmt.Errorf("chain is nil")
	}
	if cfg.Sealer == "" {
		return nil, fmt.Errorf("sealer is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}
	return &Miner{
		chain:  chain,
		cfg:    cfg,
		logger: log.Miner,
	}, nil
}

// Sealed returns the number of blocks this miner has sealed.
func (m *Miner) Sealed() uint64 {
	return m.sealed.Load()
}

// SealOnce seals the current pending records into one block.
func (m *Miner) SealOnce(ctx context.Context) (*block.Block, error) {
	pending := m.chain.PendingCount()
	if pending == 0 && !m.cfg.AllowEmpty {
		return nil, ErrNothingToSeal
	}

	start := time.Now()
	blk, err := m.chain.SealPending(ctx, m.cfg.Sealer)
	if err != nil {
		return nil, err
	}
	m.sealed.Add(1)

	m.logger.Info().
		Uint64("index", blk.Header.Index).
		Str("digest", blk.Digest.String()).
		Uint64("nonce", blk.Header.Nonce).
		Int("records", pending).
		Dur("took", time.Since(start)).
		Msg("Block sealed")
	return blk, nil
}

// Run seals on every tick until ctx is done. Sealing failures are logged
// and retried on the next tick.
func (m *Miner) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Info().
		Str("sealer", m.cfg.Sealer).
		Dur("interval", m.cfg.Interval).
		Bool("allow_empty", m.cfg.AllowEmpty).
		Msg("Miner started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Uint64("sealed", m.Sealed()).Msg("Miner stopped")
			return
		case <-ticker.C:
			_, err := m.SealOnce(ctx)
			switch {
			case err == nil:
			case errors.Is(err, ErrNothingToSeal):
				m.logger.Debug().Msg("Nothing to seal")
			case errors.Is(err, consensus.ErrSealCancelled):
				m.logger.Debug().Err(err).Msg("Sealing cancelled")
			default:
				m.logger.Error().Err(err).Msg("Sealing failed")
			}
		}
	}
}
