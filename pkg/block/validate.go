package block

import (
	"errors"
	"fmt"
)

// Block errors.
var (
	ErrNilBlock       = errors.New("block is nil")
	ErrNilHeader      = errors.New("block has nil header")
	ErrNilPayload     = errors.New("block has nil payload")
	ErrAlreadySealed  = errors.New("block is already sealed")
	ErrDigestMismatch = errors.New("digest does not match block contents")
)

// Validate checks that the block is structurally usable.
// Payload contents are never inspected.
func (b *Block) Validate() error {
	if b == nil {
		return ErrNilBlock
	}
	if b.Header == nil {
		return ErrNilHeader
	}
	if b.Payload == nil {
		return ErrNilPayload
	}
	return nil
}

// VerifyDigest checks the stored digest against recomputation.
func (b *Block) VerifyDigest() error {
	if err := b.Validate(); err != nil {
		return err
	}
	if got := b.ComputeDigest(); got != b.Digest {
		return fmt.Errorf("%w: stored %s, computed %s", ErrDigestMismatch, b.Digest, got)
	}
	return nil
}
