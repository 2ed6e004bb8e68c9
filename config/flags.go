package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Version is reported by --version.
const Version = "0.1.0"

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	Testnet bool
	DataDir string
	Config  string
	Memory  bool
	Genesis string

	// Mining
	Mine       bool
	Sealer     string
	Threads    int
	Interval   time.Duration
	AllowEmpty bool

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetMemory     bool
	SetMine       bool
	SetAllowEmpty bool
	SetLogJSON    bool
}

// ParseFlags parses command-line flags from args (without the program name).
// Usage text goes to out.
func ParseFlags(args []string, out io.Writer) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("hashchaind", flag.ContinueOnError)
	fs.SetOutput(out)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	fs.BoolVar(&f.Testnet, "testnet", false, "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")
	fs.BoolVar(&f.Memory, "memory", false, "Keep the chain in memory only")
	fs.StringVar(&f.Genesis, "genesis", "", "Custom genesis file (JSON)")

	// Mining
	fs.BoolVar(&f.Mine, "mine", false, "Enable block sealing")
	fs.StringVar(&f.Sealer, "sealer", "", "Recipient of sealing rewards")
	fs.IntVar(&f.Threads, "threads", 0, "Parallel nonce search goroutines")
	fs.DurationVar(&f.Interval, "interval", 0, "Time between sealing attempts")
	fs.BoolVar(&f.AllowEmpty, "allow-empty", false, "Seal blocks with only the reward")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() {
		printUsage(out)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if f.Testnet {
		f.Network = string(Testnet)
	}
	f.SetMemory = isFlagSet(fs, "memory")
	f.SetMine = isFlagSet(fs, "mine")
	f.SetAllowEmpty = isFlagSet(fs, "allow-empty")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	// A positional argument stops the parser; anything flag-like after it
	// was silently ignored.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(strings.ToLower(f.Network))
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.SetMemory {
		cfg.Memory = f.Memory
	}
	if f.Genesis != "" {
		cfg.Genesis = f.Genesis
	}

	// Mining
	if f.SetMine {
		cfg.Mining.Enabled = f.Mine
	}
	if f.Sealer != "" {
		cfg.Mining.Sealer = f.Sealer
	}
	if f.Threads != 0 {
		cfg.Mining.Threads = f.Threads
	}
	if f.Interval != 0 {
		cfg.Mining.Interval = f.Interval
	}
	if f.SetAllowEmpty {
		cfg.Mining.AllowEmpty = f.AllowEmpty
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage(w io.Writer) {
	usage := `Hashchain - single-writer proof-of-work hash chain

Usage:
  hashchaind [options]
  hashchaind --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --network       Network type: mainnet (default) or testnet
  --testnet       Shorthand for --network=testnet
  --datadir       Data directory (default: ~/.hashchain)
  --config, -c    Config file path (default: <datadir>/hashchain.conf)
  --memory        Keep the chain in memory only
  --genesis       Custom genesis file (JSON)

Mining Options:
  --mine          Enable block sealing
  --sealer        Recipient of sealing rewards
  --threads       Parallel nonce search goroutines (default: 1)
  --interval      Time between sealing attempts (mainnet: 10s, testnet: 2s)
  --allow-empty   Seal blocks that only carry the reward

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Examples:
  # Start a mainnet node
  hashchaind

  # Seal testnet blocks every second with four threads
  hashchaind --testnet --mine --sealer=Miner123 --threads=4 --interval=1s

  # Throwaway in-memory chain
  hashchaind --memory --mine --sealer=me --allow-empty

Note:
  Protocol rules (difficulty, sealing reward) are fixed by the genesis
  configuration. Data directories are created automatically on first start.
  The daemon accepts no records over the network, so without --allow-empty
  it seals nothing. Use "hashchain-cli seal" while the daemon is stopped to
  seal records into a stored chain.
`
	fmt.Fprint(w, usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
//
// For --help it prints usage and returns flag.ErrHelp.
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args, os.Stderr)
	if err != nil {
		return nil, nil, err
	}

	if flags.Help {
		printUsage(os.Stdout)
		return nil, flags, flag.ErrHelp
	}
	if flags.Version {
		return nil, flags, nil
	}

	network := Mainnet
	if strings.ToLower(flags.Network) == string(Testnet) {
		network = Testnet
	}

	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Memory-only nodes leave the disk alone unless a config file is named.
	if !(flags.SetMemory && flags.Memory) {
		if err := EnsureDataDirs(cfg); err != nil {
			return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
		}
	}

	configPath := flags.Config
	if configPath == "" && !(flags.SetMemory && flags.Memory) {
		configPath = cfg.ConfigFile()
	}
	if configPath != "" {
		fileValues, err := LoadFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config file: %w", err)
		}
		if err := ApplyFileConfig(cfg, fileValues); err != nil {
			return nil, nil, fmt.Errorf("applying config file: %w", err)
		}
	}

	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ChainDataDir(),
		cfg.BlocksDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
