package config

import (
	"path/filepath"
	"testing"

	"github.com/Klingon-tech/hashchain/pkg/types"
)

func TestGenesis_Validate_MainnetValid(t *testing.T) {
	g := MainnetGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("mainnet genesis should be valid: %v", err)
	}
	if g.Protocol.Difficulty != 4 || g.Protocol.SealingReward != 100 {
		t.Errorf("mainnet rules = %+v", g.Protocol)
	}
}

func TestGenesis_Validate_TestnetValid(t *testing.T) {
	g := TestnetGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("testnet genesis should be valid: %v", err)
	}
	if g.Protocol.Difficulty != 2 {
		t.Errorf("testnet difficulty = %d, want 2", g.Protocol.Difficulty)
	}
}

func TestGenesis_Validate_Rejects(t *testing.T) {
	g := MainnetGenesis()
	g.ChainID = ""
	if err := g.Validate(); err == nil {
		t.Error("expected error for empty chain_id")
	}

	g = MainnetGenesis()
	g.Protocol.Difficulty = types.MaxDifficulty + 1
	if err := g.Validate(); err == nil {
		t.Error("expected error for difficulty above maximum")
	}

	g.Protocol.Difficulty = types.MaxDifficulty
	if err := g.Validate(); err != nil {
		t.Errorf("maximum difficulty should be accepted: %v", err)
	}
}

func TestGenesisFor(t *testing.T) {
	if GenesisFor(Testnet).ChainID != TestnetGenesis().ChainID {
		t.Error("GenesisFor(Testnet) returned wrong genesis")
	}
	if GenesisFor("unknown").ChainID != MainnetGenesis().ChainID {
		t.Error("unknown network should default to mainnet")
	}
}

func TestGenesis_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	g := TestnetGenesis()
	g.Protocol.SealingReward = 7

	if err := g.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("LoadGenesis: %v", err)
	}
	if *loaded != *g {
		t.Errorf("loaded = %+v, want %+v", loaded, g)
	}
}

func TestLoadGenesis_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	g := MainnetGenesis()
	g.ChainID = ""
	if err := g.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := LoadGenesis(path); err == nil {
		t.Error("expected error loading invalid genesis")
	}
	if _, err := LoadGenesis(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGenesis_Hash(t *testing.T) {
	a, err := MainnetGenesis().Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, _ := MainnetGenesis().Hash()
	if a != b {
		t.Error("hash should be deterministic")
	}
	c, _ := TestnetGenesis().Hash()
	if a == c {
		t.Error("mainnet and testnet genesis should hash differently")
	}
}
