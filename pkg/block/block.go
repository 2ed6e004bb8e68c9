// Package block defines blocks, their canonical encoding, and digests.
package block

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/hashchain/pkg/crypto"
	"github.com/Klingon-tech/hashchain/pkg/types"
)

// Block binds a payload to its predecessor. It starts unsealed with a
// digest computed at nonce 0; Seal freezes it.
type Block struct {
	Header  *Header
	Payload Payload
	Digest  types.Hash

	sealed bool
}

// New creates an unsealed block and computes its initial digest.
func New(index, timestamp uint64, payload Payload, prevDigest types.Hash) *Block {
	b := &Block{
		Header: &Header{
			Index:      index,
			Timestamp:  timestamp,
			PrevDigest: prevDigest,
		},
		Payload: payload,
	}
	b.Digest = b.ComputeDigest()
	return b
}

// SigningPrefix returns the canonical bytes without the trailing nonce.
// Format: index(8) | timestamp(8) | payload_kind(1) | payload_len(4) | payload | prev_digest(32)
func (b *Block) SigningPrefix() []byte {
	var kind PayloadKind
	var payload []byte
	if b.Payload != nil {
		kind = b.Payload.Kind()
		payload = b.Payload.CanonicalBytes()
	}

	buf := make([]byte, 0, 8+8+1+4+len(payload)+types.HashSize+8)
	buf = binary.LittleEndian.AppendUint64(buf, b.Header.Index)
	buf = binary.LittleEndian.AppendUint64(buf, b.Header.Timestamp)
	buf = append(buf, byte(kind))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	buf = append(buf, b.Header.PrevDigest[:]...)
	return buf
}

// SigningBytes returns the canonical bytes hashed into the digest:
// the signing prefix followed by nonce(8).
func (b *Block) SigningBytes() []byte {
	return binary.LittleEndian.AppendUint64(b.SigningPrefix(), b.Header.Nonce)
}

// ComputeDigest recomputes the digest from the current fields.
// It never mutates the block.
func (b *Block) ComputeDigest() types.Hash {
	return crypto.Hash(b.SigningBytes())
}

// Seal records the nonce found by the proof-of-work search and freezes
// the block. The digest must match recomputation at that nonce.
func (b *Block) Seal(nonce uint64, digest types.Hash) error {
	if b.sealed {
		return ErrAlreadySealed
	}
	prev := b.Header.Nonce
	b.Header.Nonce = nonce
	if got := b.ComputeDigest(); got != digest {
		b.Header.Nonce = prev
		return fmt.Errorf("%w: nonce %d gives %s, got %s", ErrDigestMismatch, nonce, got, digest)
	}
	b.Digest = digest
	b.sealed = true
	return nil
}

// IsSealed returns true once Seal has succeeded, or for decoded blocks.
func (b *Block) IsSealed() bool {
	return b.sealed
}

// Clone returns a deep copy, preserving the sealed state.
func (b *Block) Clone() *Block {
	c := &Block{
		Payload: clonePayload(b.Payload),
		Digest:  b.Digest,
		sealed:  b.sealed,
	}
	if b.Header != nil {
		h := *b.Header
		c.Header = &h
	}
	return c
}

// blockJSON is the serialized record of a block.
type blockJSON struct {
	Index      uint64          `json:"index"`
	Timestamp  uint64          `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
	PrevDigest string          `json:"previous_digest"`
	Nonce      uint64          `json:"nonce"`
	Digest     types.Hash      `json:"digest"`
}

// MarshalJSON encodes the block as a flat record in digest field order.
func (b *Block) MarshalJSON() ([]byte, error) {
	if b.Header == nil {
		return nil, ErrNilHeader
	}
	payload, err := json.Marshal(b.Payload)
	if err != nil {
		return nil, fmt.Errorf("payload marshal: %w", err)
	}
	return json.Marshal(blockJSON{
		Index:      b.Header.Index,
		Timestamp:  b.Header.Timestamp,
		Payload:    payload,
		PrevDigest: formatPrevDigest(b.Header.PrevDigest),
		Nonce:      b.Header.Nonce,
		Digest:     b.Digest,
	})
}

// UnmarshalJSON decodes a block record. Decoded blocks are sealed: they
// come from storage or a peer and are subject to chain validation only.
func (b *Block) UnmarshalJSON(data []byte) error {
	var j blockJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	prev, err := parsePrevDigest(j.PrevDigest)
	if err != nil {
		return fmt.Errorf("previous_digest: %w", err)
	}
	payload, err := decodePayload(j.Payload)
	if err != nil {
		return err
	}
	b.Header = &Header{
		Index:      j.Index,
		Timestamp:  j.Timestamp,
		PrevDigest: prev,
		Nonce:      j.Nonce,
	}
	b.Payload = payload
	b.Digest = j.Digest
	b.sealed = true
	return nil
}
