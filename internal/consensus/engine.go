// Package consensus implements block sealing and its verification.
package consensus

import (
	"context"

	"github.com/Klingon-tech/hashchain/pkg/block"
)

// Engine seals blocks and verifies sealed blocks.
type Engine interface {
	VerifyBlock(blk *block.Block) error
	SealWithCancel(ctx context.Context, blk *block.Block) error
}
