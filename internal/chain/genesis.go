package chain

import (
	"fmt"

	"github.com/Klingon-tech/hashchain/config"
	"github.com/Klingon-tech/hashchain/pkg/block"
	"github.com/Klingon-tech/hashchain/pkg/types"
)

// CreateGenesisBlock builds the genesis block for p. It has index 0, the
// zero previous digest, a text payload and nonce 0. It is sealed as-is;
// no proof-of-work is required of it.
func CreateGenesisBlock(p Params) *block.Block {
	p = p.withDefaults()
	blk := block.New(0, p.GenesisTimestamp, block.Text(p.GenesisData), types.Hash{})
	if err := blk.Seal(0, blk.Digest); err != nil {
		// Digest was just computed at nonce 0.
		panic(fmt.Sprintf("seal genesis: %v", err))
	}
	return blk
}

// ParamsFromGenesis converts a genesis configuration into chain parameters.
func ParamsFromGenesis(gen *config.Genesis, threads int) (Params, error) {
	if gen == nil {
		return Params{}, fmt.Errorf("genesis config is nil")
	}
	if err := gen.Validate(); err != nil {
		return Params{}, fmt.Errorf("invalid genesis: %w", err)
	}
	return Params{
		Difficulty:       gen.Protocol.Difficulty,
		SealingReward:    gen.Protocol.SealingReward,
		GenesisTimestamp: gen.Timestamp,
		GenesisData:      gen.ExtraData,
		Threads:          threads,
	}, nil
}
