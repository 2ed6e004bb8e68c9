package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Klingon-tech/hashchain/pkg/crypto"
	"github.com/Klingon-tech/hashchain/pkg/types"
)

// Genesis holds the genesis block configuration and protocol rules.
// It is fixed once a chain has been created.
type Genesis struct {
	// Chain identity
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`

	// Genesis block
	Timestamp uint64 `json:"timestamp"` // Unix milliseconds.
	ExtraData string `json:"extra_data,omitempty"`

	// Protocol rules
	Protocol ProtocolConfig `json:"protocol"`
}

// ProtocolConfig holds the rules every block is checked against.
type ProtocolConfig struct {
	// Leading zero hex digits a sealed digest must have.
	Difficulty uint64 `json:"difficulty"`

	// Amount paid to the sealer of each block.
	SealingReward uint64 `json:"sealing_reward"`
}

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "hashchain-mainnet-1",
		ChainName: "Hashchain Mainnet",
		Timestamp: 1640995200000, // 2022-01-01
		ExtraData: "Genesis Block",
		Protocol: ProtocolConfig{
			Difficulty:    4,
			SealingReward: 100,
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "hashchain-testnet-1"
	g.ChainName = "Hashchain Testnet"
	g.Protocol.Difficulty = 2
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if g.Protocol.Difficulty > types.MaxDifficulty {
		return fmt.Errorf("difficulty %d exceeds maximum %d", g.Protocol.Difficulty, types.MaxDifficulty)
	}
	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration.
// Used to identify the chain and detect genesis mismatches.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
