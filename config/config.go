// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: defined in genesis, fixed for the life of a chain
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds node-specific runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`
	Memory  bool        `conf:"memory"`  // Keep the chain in memory only.
	Genesis string      `conf:"genesis"` // Custom genesis file; empty uses the built-in one.

	Mining MiningConfig

	Log LogConfig
}

// MiningConfig holds block sealing settings.
type MiningConfig struct {
	Enabled    bool          `conf:"mining.enabled"`
	Sealer     string        `conf:"mining.sealer"`     // Recipient of sealing rewards.
	Threads    int           `conf:"mining.threads"`    // Parallel nonce search goroutines.
	Interval   time.Duration `conf:"mining.interval"`   // Time between sealing attempts.
	AllowEmpty bool          `conf:"mining.allowempty"` // Seal blocks with only the reward.
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.hashchain
//	macOS:   ~/Library/Application Support/Hashchain
//	Windows: %APPDATA%\Hashchain
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hashchain"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Hashchain")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Hashchain")
		}
		return filepath.Join(home, "AppData", "Roaming", "Hashchain")
	default:
		return filepath.Join(home, ".hashchain")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// BlocksDir returns the block database directory.
func (c *Config) BlocksDir() string {
	return filepath.Join(c.ChainDataDir(), "blocks")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "hashchain.conf")
}

// LoadGenesis returns the custom genesis when one is configured and the
// built-in genesis for the network otherwise.
func (c *Config) LoadGenesis() (*Genesis, error) {
	if c.Genesis != "" {
		return LoadGenesis(c.Genesis)
	}
	return GenesisFor(c.Network), nil
}
