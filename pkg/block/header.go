package block

import (
	"github.com/Klingon-tech/hashchain/pkg/types"
)

// GenesisPrevDigest is the textual previous-digest sentinel of the genesis
// block. It is stored as the zero hash.
const GenesisPrevDigest = "0"

// Header contains the fields bound into the block digest besides the payload.
type Header struct {
	Index      uint64     // 0 for genesis, +1 per block.
	Timestamp  uint64     // Unix milliseconds.
	PrevDigest types.Hash // Zero for genesis.
	Nonce      uint64     // Mutated only while sealing.
}

// IsGenesis returns true for the index-0 header.
func (h *Header) IsGenesis() bool {
	return h.Index == 0
}

// formatPrevDigest renders the previous digest, using the sentinel for zero.
func formatPrevDigest(h types.Hash) string {
	if h.IsZero() {
		return GenesisPrevDigest
	}
	return h.String()
}

// parsePrevDigest is the inverse of formatPrevDigest.
func parsePrevDigest(s string) (types.Hash, error) {
	if s == GenesisPrevDigest || s == "" {
		return types.Hash{}, nil
	}
	return types.HexToHash(s)
}
