// Package tx defines the payload records carried by blocks.
//
// Records are opaque to the chain: no balances, signatures, or spend
// checks are applied. Only their canonical encoding matters, because
// it feeds the block digest.
package tx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Klingon-tech/hashchain/pkg/crypto"
	"github.com/Klingon-tech/hashchain/pkg/types"
)

// Transaction is a transfer-like payload record.
// A nil Sender marks a sealing reward.
type Transaction struct {
	Sender    *string `json:"sender"`
	Recipient string  `json:"recipient"`
	Amount    uint64  `json:"amount"`
}

// New creates a record from sender to recipient.
func New(sender, recipient string, amount uint64) *Transaction {
	return &Transaction{Sender: &sender, Recipient: recipient, Amount: amount}
}

// NewReward creates the sealing reward record paid to recipient.
func NewReward(recipient string, amount uint64) *Transaction {
	return &Transaction{Recipient: recipient, Amount: amount}
}

// IsReward returns true if the record has no sender.
func (tx *Transaction) IsReward() bool {
	return tx.Sender == nil
}

// Hash computes the record ID (BLAKE3 hash of the signing bytes).
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// SigningBytes returns the canonical byte representation.
// Format: has_sender(1) | [sender_len(4) + sender] | recipient_len(4) + recipient | amount(8)
func (tx *Transaction) SigningBytes() []byte {
	return tx.AppendSigningBytes(nil)
}

// AppendSigningBytes appends the canonical encoding to buf.
func (tx *Transaction) AppendSigningBytes(buf []byte) []byte {
	if tx.Sender == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = appendString(buf, *tx.Sender)
	}
	buf = appendString(buf, tx.Recipient)
	buf = binary.LittleEndian.AppendUint64(buf, tx.Amount)
	return buf
}

// Clone returns a deep copy.
func (tx *Transaction) Clone() *Transaction {
	c := &Transaction{Recipient: tx.Recipient, Amount: tx.Amount}
	if tx.Sender != nil {
		s := *tx.Sender
		c.Sender = &s
	}
	return c
}

// String renders the record for logs.
func (tx *Transaction) String() string {
	from := "<reward>"
	if tx.Sender != nil {
		from = *tx.Sender
	}
	return fmt.Sprintf("%s -> %s: %d", from, tx.Recipient, tx.Amount)
}

// ErrBadRecord is returned by Parse for malformed input.
var ErrBadRecord = errors.New("record must be sender:recipient:amount")

// Parse reads a record written as sender:recipient:amount. The sender ends
// at the first colon and the amount starts after the last one, so the
// recipient may itself contain colons.
func Parse(s string) (*Transaction, error) {
	sender, rest, ok := strings.Cut(s, ":")
	i := strings.LastIndexByte(rest, ':')
	if !ok || i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrBadRecord, s)
	}
	recipient, amountStr := rest[:i], rest[i+1:]
	if sender == "" || recipient == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadRecord, s)
	}
	amount, err := strconv.ParseUint(amountStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q: %v", ErrBadRecord, amountStr, err)
	}
	return New(sender, recipient, amount), nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
