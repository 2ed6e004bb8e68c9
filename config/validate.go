package config

import (
	"fmt"
	"runtime"
	"strings"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if !cfg.Memory && cfg.DataDir == "" {
		return fmt.Errorf("datadir is required unless memory = true")
	}

	if cfg.Mining.Threads < 1 {
		return fmt.Errorf("mining.threads must be at least 1")
	}
	if limit := 4 * runtime.NumCPU(); cfg.Mining.Threads > limit {
		return fmt.Errorf("mining.threads %d exceeds %d", cfg.Mining.Threads, limit)
	}
	if cfg.Mining.Enabled {
		if strings.TrimSpace(cfg.Mining.Sealer) == "" {
			return fmt.Errorf("mining.sealer is required when mining is enabled")
		}
		if cfg.Mining.Interval <= 0 {
			return fmt.Errorf("mining.interval must be positive")
		}
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of trace, debug, info, warn, error")
	}
	return nil
}
