package block

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/hashchain/pkg/tx"
)

// PayloadKind tags the payload encoding inside the block signing bytes.
type PayloadKind byte

// Payload kinds.
const (
	PayloadText         PayloadKind = 0x01 // Free-form text (genesis).
	PayloadTransactions PayloadKind = 0x02 // Ordered transaction records.
)

// ErrUnknownPayload is returned when a payload cannot be decoded.
var ErrUnknownPayload = errors.New("unknown payload encoding")

// Payload is the opaque content of a block. The block never interprets it;
// it only needs a stable, order-preserving encoding to hash.
type Payload interface {
	Kind() PayloadKind
	CanonicalBytes() []byte
}

// Text is a free-form payload, used by the genesis block.
type Text string

// Kind returns PayloadText.
func (Text) Kind() PayloadKind { return PayloadText }

// CanonicalBytes returns the UTF-8 bytes of the text.
func (t Text) CanonicalBytes() []byte { return []byte(t) }

// Transactions is an ordered list of records.
type Transactions []*tx.Transaction

// Kind returns PayloadTransactions.
func (Transactions) Kind() PayloadKind { return PayloadTransactions }

// CanonicalBytes returns count(4) followed by each record's signing bytes.
// Record encodings are self-delimiting, so no per-record length is needed.
func (txs Transactions) CanonicalBytes() []byte {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(txs)))
	for _, t := range txs {
		buf = t.AppendSigningBytes(buf)
	}
	return buf
}

// clonePayload deep-copies the payload kinds this package knows about.
func clonePayload(p Payload) Payload {
	switch v := p.(type) {
	case Transactions:
		out := make(Transactions, len(v))
		for i, t := range v {
			out[i] = t.Clone()
		}
		return out
	default:
		return p
	}
}

// decodePayload picks the payload type from the JSON shape:
// a string is Text, an array is Transactions.
func decodePayload(raw json.RawMessage) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrNilPayload
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("text payload: %w", err)
		}
		return Text(s), nil
	case '[':
		var txs Transactions
		if err := json.Unmarshal(trimmed, &txs); err != nil {
			return nil, fmt.Errorf("transactions payload: %w", err)
		}
		for i, t := range txs {
			if t == nil {
				return nil, fmt.Errorf("transactions payload: record %d is null", i)
			}
		}
		return txs, nil
	default:
		return nil, ErrUnknownPayload
	}
}
