package chain

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/hashchain/internal/consensus"
	"github.com/Klingon-tech/hashchain/pkg/block"
	"github.com/Klingon-tech/hashchain/pkg/tx"
)

// sealedChain returns a chain with two sealed blocks after genesis.
func sealedChain(t *testing.T, difficulty uint64) *Chain {
	t.Helper()
	c := mustNew(t, testParams(difficulty))
	c.AddPending(tx.New("Alice", "Bob", 50))
	mustSeal(t, c, "m")
	c.AddPending(tx.New("Bob", "Alice", 25))
	mustSeal(t, c, "m")
	return c
}

func requireValidationError(t *testing.T, err error, index uint64, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Index != index {
		t.Errorf("failing index = %d, want %d", ve.Index, index)
	}
}

func TestValidate_Tampering(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(blocks []*block.Block)
		index  uint64
		target error
	}{
		{
			name: "payload amount",
			tamper: func(b []*block.Block) {
				b[1].Payload.(block.Transactions)[1].Amount = 5000
			},
			index:  1,
			target: ErrInvalidDigest,
		},
		{
			name: "payload recipient",
			tamper: func(b []*block.Block) {
				b[2].Payload.(block.Transactions)[1].Recipient = "Mallory"
			},
			index:  2,
			target: ErrInvalidDigest,
		},
		{
			name:   "timestamp",
			tamper: func(b []*block.Block) { b[1].Header.Timestamp++ },
			index:  1,
			target: ErrInvalidDigest,
		},
		{
			name:   "nonce",
			tamper: func(b []*block.Block) { b[2].Header.Nonce++ },
			index:  2,
			target: ErrInvalidDigest,
		},
		{
			name:   "stored digest",
			tamper: func(b []*block.Block) { b[1].Digest[31] ^= 0xFF },
			index:  1,
			target: ErrInvalidDigest,
		},
		{
			name:   "genesis payload",
			tamper: func(b []*block.Block) { b[0].Payload = block.Text("Forged") },
			index:  0,
			target: ErrInvalidDigest,
		},
		{
			name:   "swapped order",
			tamper: func(b []*block.Block) { b[1], b[2] = b[2], b[1] },
			index:  1,
			target: ErrInvalidLinkage,
		},
		{
			name:   "nil header",
			tamper: func(b []*block.Block) { b[2].Header = nil },
			index:  2,
			target: block.ErrNilHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := sealedChain(t, 1)
			tt.tamper(c.blocks)
			err := c.Validate()
			requireValidationError(t, err, tt.index, tt.target)
			if c.IsValid() {
				t.Error("IsValid = true for tampered chain")
			}
		})
	}
}

func TestValidate_RehashedTamperBreaksLinkage(t *testing.T) {
	// At difficulty 0 a rehashed block still meets the target, so the
	// successor's link is what catches it.
	c := sealedChain(t, 0)
	b1 := c.blocks[1]
	b1.Payload.(block.Transactions)[1].Amount = 5000
	b1.Digest = b1.ComputeDigest()

	requireValidationError(t, c.Validate(), 2, ErrInvalidLinkage)
}

func TestValidate_BadIndex(t *testing.T) {
	c := sealedChain(t, 0)
	b1 := c.blocks[1]
	b1.Header.Index = 7
	b1.Digest = b1.ComputeDigest()

	requireValidationError(t, c.Validate(), 1, ErrBadIndex)
}

func TestValidate_GenesisSentinel(t *testing.T) {
	c := sealedChain(t, 0)
	g := c.blocks[0]
	g.Header.PrevDigest[0] = 1
	g.Digest = g.ComputeDigest()

	requireValidationError(t, c.Validate(), 0, ErrInvalidLinkage)
}

func TestValidate_GenesisIndex(t *testing.T) {
	c := mustNew(t, testParams(0))
	g := c.blocks[0]
	g.Header.Index = 1
	g.Digest = g.ComputeDigest()

	requireValidationError(t, c.Validate(), 0, ErrBadIndex)
}

func TestValidateBlocks_InsufficientWork(t *testing.T) {
	c := sealedChain(t, 1)
	err := ValidateBlocks(c.Blocks(), 64)
	requireValidationError(t, err, 1, consensus.ErrInsufficientWork)
}

func TestValidateBlocks_Empty(t *testing.T) {
	if err := ValidateBlocks(nil, 0); !errors.Is(err, ErrEmptyChain) {
		t.Fatalf("expected ErrEmptyChain, got %v", err)
	}
}

func TestValidateBlocks_GenesisOnly(t *testing.T) {
	if err := ValidateBlocks([]*block.Block{CreateGenesisBlock(Params{})}, 4); err != nil {
		t.Fatalf("genesis needs no work, got %v", err)
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Index: 3, Err: ErrInvalidLinkage}
	want := "block 3: " + ErrInvalidLinkage.Error()
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidate_ResealedMisroutedBlock(t *testing.T) {
	// Block 1 is re-pointed and rehashed so its own digest checks out.
	c := sealedChain(t, 0)
	b1 := c.blocks[1]
	b1.Header.PrevDigest[0] ^= 0x01
	b1.Digest = b1.ComputeDigest()

	requireValidationError(t, c.Validate(), 1, ErrInvalidLinkage)
}

type countingEngine struct {
	consensus.Engine
	verified int
}

func (e *countingEngine) VerifyBlock(blk *block.Block) error {
	e.verified++
	return e.Engine.VerifyBlock(blk)
}

func TestValidate_UsesEngine(t *testing.T) {
	c := sealedChain(t, 1)
	engine := &countingEngine{Engine: c.engine}
	c.engine = engine

	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	// Genesis is checked without the engine.
	if engine.verified != 2 {
		t.Errorf("VerifyBlock calls = %d, want 2", engine.verified)
	}
}
