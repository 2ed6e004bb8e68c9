// Package node wires configuration, storage, the chain and the miner into
// a runnable hashchain node that any binary can embed.
package node

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/hashchain/config"
	"github.com/Klingon-tech/hashchain/internal/chain"
	klog "github.com/Klingon-tech/hashchain/internal/log"
	"github.com/Klingon-tech/hashchain/internal/miner"
	"github.com/Klingon-tech/hashchain/internal/storage"
	"github.com/Klingon-tech/hashchain/pkg/block"
	"github.com/Klingon-tech/hashchain/pkg/tx"
)

// Node is a fully-initialized hashchain node.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger
	logFile io.Closer

	db    storage.DB
	ch    *chain.Chain
	miner *miner.Miner

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a Node: logger, genesis, storage, chain and
// miner. It does NOT start the miner; call Start for that.
func New(cfg *config.Config) (*Node, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)

	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" && !cfg.Memory {
		if err := os.MkdirAll(cfg.LogsDir(), 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(cfg.LogsDir(), "hashchain.log")
	}
	closer, err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.Node

	n := &Node{cfg: cfg, logger: logger, logFile: closer}
	ok := false
	defer func() {
		if !ok {
			n.close()
		}
	}()

	// ── 2. Genesis ──────────────────────────────────────────────────
	genesis, err := cfg.LoadGenesis()
	if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}
	params, err := chain.ParamsFromGenesis(genesis, cfg.Mining.Threads)
	if err != nil {
		return nil, err
	}
	n.genesis = genesis

	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("network", string(cfg.Network)).
		Uint64("difficulty", params.Difficulty).
		Uint64("sealing_reward", params.SealingReward).
		Msg("Starting hashchain node")

	// ── 3. Open storage ─────────────────────────────────────────────
	if cfg.Memory {
		n.db = storage.NewMemory()
		klog.Storage.Info().Msg("Using in-memory database")
	} else {
		db, err := storage.NewBadger(cfg.BlocksDir())
		if err != nil {
			return nil, fmt.Errorf("open database at %s: %w", cfg.BlocksDir(), err)
		}
		n.db = db
		klog.Storage.Info().Str("path", cfg.BlocksDir()).Msg("Database opened")
	}

	// ── 4. Chain ────────────────────────────────────────────────────
	chainDB := storage.NewPrefixDB(n.db, ChainPrefix(genesis))
	done := klog.Benchmark("chain open")
	ch, err := chain.Open(params, chainDB)
	done()
	if err != nil {
		return nil, fmt.Errorf("open chain: %w", err)
	}
	n.ch = ch
	n.wireHandlers()

	tip := ch.Tip()
	klog.Chain.Info().
		Uint64("height", tip.Header.Index).
		Str("tip", tip.Digest.String()).
		Msg("Chain loaded")

	// ── 5. Miner ────────────────────────────────────────────────────
	if cfg.Mining.Enabled {
		m, err := miner.New(ch, miner.Config{
			Sealer:     cfg.Mining.Sealer,
			Interval:   cfg.Mining.Interval,
			AllowEmpty: cfg.Mining.AllowEmpty,
		})
		if err != nil {
			return nil, fmt.Errorf("create miner: %w", err)
		}
		n.miner = m
	}

	n.ctx, n.cancel = context.WithCancel(context.Background())
	ok = true
	return n, nil
}

// ChainPrefix namespaces a chain's keys inside the node database.
func ChainPrefix(g *config.Genesis) []byte {
	return []byte("chain/" + g.ChainID + "/")
}

func (n *Node) wireHandlers() {
	n.ch.SetPendingHandler(func(rec *tx.Transaction) {
		klog.Chain.Debug().
			Str("record", rec.String()).
			Str("hash", rec.Hash().String()).
			Msg("Record queued")
	})
	n.ch.SetSealHandler(func(blk *block.Block) {
		klog.Chain.Info().
			Uint64("index", blk.Header.Index).
			Str("digest", blk.Digest.String()).
			Str("prev", blk.Header.PrevDigest.String()).
			Msg("Block appended")
	})
}

// Start launches the miner when mining is enabled.
func (n *Node) Start() error {
	if n.miner != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.miner.Run(n.ctx)
		}()
	}

	n.logger.Info().
		Uint64("height", n.ch.Height()).
		Bool("mining", n.miner != nil).
		Msg("Node started successfully")
	return nil
}

// Stop cancels background work, waits for it and closes storage.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()
	n.close()
	n.logger.Info().Msg("Goodbye!")
}

func (n *Node) close() {
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			klog.Storage.Error().Err(err).Msg("Close database")
		}
		n.db = nil
	}
	if n.logFile != nil {
		n.logFile.Close()
		n.logFile = nil
	}
}

// Chain returns the node's chain.
func (n *Node) Chain() *chain.Chain {
	return n.ch
}

// Genesis returns the genesis configuration the chain was opened with.
func (n *Node) Genesis() *config.Genesis {
	return n.genesis
}

// Miner returns the node's miner, or nil when mining is disabled.
func (n *Node) Miner() *miner.Miner {
	return n.miner
}

// Height returns the current chain height.
func (n *Node) Height() uint64 {
	return n.ch.Height()
}

// Submit queues a record for the next sealed block.
func (n *Node) Submit(rec *tx.Transaction) {
	n.ch.AddPending(rec)
}
