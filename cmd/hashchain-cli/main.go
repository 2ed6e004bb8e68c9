// hashchain-cli inspects and maintains a hashchaind data directory.
// The daemon must be stopped first: the database allows one process.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Klingon-tech/hashchain/config"
	"github.com/Klingon-tech/hashchain/internal/chain"
	"github.com/Klingon-tech/hashchain/internal/node"
	"github.com/Klingon-tech/hashchain/internal/storage"
	"github.com/Klingon-tech/hashchain/pkg/block"
	"github.com/Klingon-tech/hashchain/pkg/tx"
)

// globals are the options accepted before the subcommand.
type globals struct {
	dataDir string
	network string
	genesis string
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	g := globals{
		dataDir: config.DefaultDataDir(),
		network: string(config.Mainnet),
	}

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--datadir" && len(args) > 1:
			g.dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			g.dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			g.network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			g.network = args[0][len("--network="):]
			args = args[1:]
		case args[0] == "--testnet":
			g.network = string(config.Testnet)
			args = args[1:]
		case args[0] == "--genesis" && len(args) > 1:
			g.genesis = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--genesis="):
			g.genesis = args[0][len("--genesis="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(g)
	case "verify":
		cmdVerify(g)
	case "block":
		cmdBlock(g, cmdArgs)
	case "seal":
		cmdSeal(g, cmdArgs)
	case "export":
		cmdExport(g, cmdArgs)
	case "genesis":
		cmdGenesis(g, cmdArgs)
	case "reset":
		cmdReset(g, cmdArgs)
	case "demo":
		cmdDemo()
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: hashchain-cli [global flags] <command> [args]

Global flags:
  --datadir <path>    Data directory (default: ~/.hashchain)
  --network <net>     mainnet (default) or testnet
  --testnet           Shorthand for --network=testnet
  --genesis <file>    Custom genesis file (JSON)

Commands:
  status              Show chain height, tip and rules
  verify              Validate every stored block
  block <index>       Print a block as JSON
  seal <sealer> [sender:recipient:amount ...]
                      Seal the given records into a new stored block
  export [file]       Write the chain snapshot as JSON (default: stdout)
  genesis [file]      Print or save the genesis configuration
  reset --yes         Delete the stored chain for this network
  demo                Run a sealing demo on an in-memory chain

The node daemon must not be running while this tool opens the database.
`)
}

// ── store access ───────────────────────────────────────────────────────

type store struct {
	cfg     *config.Config
	genesis *config.Genesis
	db      *storage.BadgerDB
	chainDB *storage.PrefixDB
}

func openStore(g globals) *store {
	cfg := config.Default(config.NetworkType(g.network))
	cfg.DataDir = g.dataDir
	cfg.Genesis = g.genesis
	if err := config.Validate(cfg); err != nil {
		fatal("invalid flags: %v", err)
	}

	if _, err := os.Stat(cfg.BlocksDir()); err != nil {
		fatal("no chain data at %s (start hashchaind first)", cfg.BlocksDir())
	}

	genesis, err := cfg.LoadGenesis()
	if err != nil {
		fatal("load genesis: %v", err)
	}
	db, err := storage.NewBadger(cfg.BlocksDir())
	if err != nil {
		fatal("open database: %v", err)
	}
	return &store{
		cfg:     cfg,
		genesis: genesis,
		db:      db,
		chainDB: storage.NewPrefixDB(db, node.ChainPrefix(genesis)),
	}
}

func (s *store) openChain() *chain.Chain {
	params, err := chain.ParamsFromGenesis(s.genesis, 1)
	if err != nil {
		s.close()
		fatal("%v", err)
	}
	ch, err := chain.Open(params, s.chainDB)
	if err != nil {
		s.close()
		fatal("open chain: %v", err)
	}
	return ch
}

func (s *store) close() {
	if err := s.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: close database: %v\n", err)
	}
}

// ── status ─────────────────────────────────────────────────────────────

func cmdStatus(g globals) {
	s := openStore(g)
	defer s.close()
	ch := s.openChain()

	tip := ch.Tip()
	fmt.Printf("Chain:       %s\n", s.genesis.ChainID)
	fmt.Printf("Network:     %s\n", s.cfg.Network)
	fmt.Printf("Height:      %d\n", tip.Header.Index)
	fmt.Printf("Tip:         %s\n", tip.Digest)
	fmt.Printf("Difficulty:  %d\n", ch.Difficulty())
	fmt.Printf("Reward:      %d\n", ch.SealingReward())
}

// ── verify ─────────────────────────────────────────────────────────────

func cmdVerify(g globals) {
	s := openStore(g)
	defer s.close()

	// Open already validates; load the raw blocks so a broken chain can
	// still be reported block by block.
	blocks, err := chain.NewBlockStore(s.chainDB).LoadBlocks()
	if err != nil {
		s.close()
		fatal("load blocks: %v", err)
	}
	params, err := chain.ParamsFromGenesis(s.genesis, 1)
	if err != nil {
		s.close()
		fatal("%v", err)
	}

	if err := chain.ValidateBlocks(blocks, params.Difficulty); err != nil {
		var ve *chain.ValidationError
		if errors.As(err, &ve) {
			fmt.Printf("INVALID at block %d: %v\n", ve.Index, ve.Err)
		} else {
			fmt.Printf("INVALID: %v\n", err)
		}
		s.close()
		os.Exit(1)
	}
	fmt.Printf("OK: %d blocks verified\n", len(blocks))
}

// ── block ──────────────────────────────────────────────────────────────

func cmdBlock(g globals, args []string) {
	if len(args) < 1 {
		fatal("Usage: hashchain-cli block <index>")
	}
	index, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fatal("invalid index %q: %v", args[0], err)
	}

	s := openStore(g)
	defer s.close()
	ch := s.openChain()

	blk, err := ch.Block(index)
	if err != nil {
		s.close()
		fatal("%v", err)
	}
	printJSON(blk)
}

// ── seal ───────────────────────────────────────────────────────────────

func cmdSeal(g globals, args []string) {
	if len(args) < 1 {
		fatal("Usage: hashchain-cli seal <sealer> [sender:recipient:amount ...]")
	}
	sealer := args[0]
	recs := make([]*tx.Transaction, 0, len(args)-1)
	for _, arg := range args[1:] {
		rec, err := tx.Parse(arg)
		if err != nil {
			fatal("%v", err)
		}
		recs = append(recs, rec)
	}

	s := openStore(g)
	defer s.close()
	ch := s.openChain()

	for _, rec := range recs {
		ch.AddPending(rec)
	}
	blk, err := ch.SealPending(context.Background(), sealer)
	if err != nil {
		s.close()
		fatal("seal: %v", err)
	}
	fmt.Printf("Sealed block %d (%d records) with nonce %d: %s\n",
		blk.Header.Index, len(recs), blk.Header.Nonce, blk.Digest)
}

// ── export ─────────────────────────────────────────────────────────────

func cmdExport(g globals, args []string) {
	s := openStore(g)
	defer s.close()
	ch := s.openChain()

	data, err := json.MarshalIndent(ch.Snapshot(), "", "  ")
	if err != nil {
		s.close()
		fatal("encode snapshot: %v", err)
	}
	if len(args) == 0 {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(args[0], data, 0644); err != nil {
		s.close()
		fatal("write %s: %v", args[0], err)
	}
	fmt.Printf("Exported %d blocks to %s\n", ch.Len(), args[0])
}

// ── genesis ────────────────────────────────────────────────────────────

func cmdGenesis(g globals, args []string) {
	cfg := config.Default(config.NetworkType(g.network))
	cfg.Genesis = g.genesis
	gen, err := cfg.LoadGenesis()
	if err != nil {
		fatal("load genesis: %v", err)
	}

	if len(args) == 0 {
		printJSON(gen)
		hash, err := gen.Hash()
		if err != nil {
			fatal("hash genesis: %v", err)
		}
		fmt.Printf("Hash: %s\n", hash)
		return
	}
	if err := gen.Save(args[0]); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Genesis written to %s\n", args[0])
}

// ── reset ──────────────────────────────────────────────────────────────

func cmdReset(g globals, args []string) {
	if len(args) == 0 || args[0] != "--yes" {
		fatal("reset deletes every stored block; rerun with --yes to confirm")
	}
	s := openStore(g)
	defer s.close()

	if err := s.chainDB.DeleteAll(); err != nil {
		s.close()
		fatal("reset: %v", err)
	}
	fmt.Printf("Deleted chain %s from %s\n", s.genesis.ChainID, s.cfg.BlocksDir())
}

// ── demo ───────────────────────────────────────────────────────────────

func cmdDemo() {
	ch, err := chain.New(chain.Params{Difficulty: 2, SealingReward: 100})
	if err != nil {
		fatal("%v", err)
	}

	ch.AddPending(tx.New("Alice", "Bob", 50))
	ch.AddPending(tx.New("Bob", "Alice", 25))

	blk, err := ch.SealPending(context.Background(), "Miner123")
	if err != nil {
		fatal("seal: %v", err)
	}
	fmt.Printf("Sealed block %d with nonce %d: %s\n\n", blk.Header.Index, blk.Header.Nonce, blk.Digest)

	printJSON(ch.Snapshot())
	fmt.Printf("\nChain valid: %v\n", ch.IsValid())

	// Tamper with a copy and show that validation catches it.
	s := ch.Snapshot()
	s.Blocks[1].Payload.(block.Transactions)[1].Amount = 5000
	if _, err := chain.FromSnapshot(s, 1); err != nil {
		fmt.Printf("Tampered copy rejected: %v\n", err)
	}
}

// ── helpers ────────────────────────────────────────────────────────────

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("encode: %v", err)
	}
	fmt.Println(string(data))
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
