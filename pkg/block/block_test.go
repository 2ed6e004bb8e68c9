package block

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Klingon-tech/hashchain/pkg/crypto"
	"github.com/Klingon-tech/hashchain/pkg/tx"
	"github.com/Klingon-tech/hashchain/pkg/types"
)

func testPayload() Transactions {
	return Transactions{
		tx.NewReward("Miner123", 100),
		tx.New("Alice", "Bob", 10),
		tx.New("Bob", "Charlie", 5),
	}
}

func testBlock() *Block {
	return New(1, 1627986378169, testPayload(), types.Hash{0xaa})
}

func TestNew_InitialDigest(t *testing.T) {
	blk := testBlock()
	if blk.Header.Nonce != 0 {
		t.Errorf("new block nonce = %d, want 0", blk.Header.Nonce)
	}
	if blk.Digest != crypto.Hash(blk.SigningBytes()) {
		t.Error("initial digest does not match hash of signing bytes")
	}
	if blk.IsSealed() {
		t.Error("new block should be unsealed")
	}
}

func TestComputeDigest_Idempotent(t *testing.T) {
	blk := testBlock()
	before := blk.Clone()

	d1 := blk.ComputeDigest()
	d2 := blk.ComputeDigest()
	if d1 != d2 {
		t.Fatalf("ComputeDigest not idempotent: %s != %s", d1, d2)
	}
	if !bytes.Equal(blk.SigningBytes(), before.SigningBytes()) || blk.Digest != before.Digest {
		t.Error("ComputeDigest mutated the block")
	}
}

func TestSigningBytes_Layout(t *testing.T) {
	blk := New(2, 3, Text("x"), types.Hash{0x01})
	blk.Header.Nonce = 4

	want := []byte{
		2, 0, 0, 0, 0, 0, 0, 0, // index
		3, 0, 0, 0, 0, 0, 0, 0, // timestamp
		byte(PayloadText),
		1, 0, 0, 0, // payload length
		'x',
	}
	want = append(want, types.Hash{0x01}.Bytes()...)
	want = append(want, 4, 0, 0, 0, 0, 0, 0, 0) // nonce

	if got := blk.SigningBytes(); !bytes.Equal(got, want) {
		t.Errorf("SigningBytes = %x, want %x", got, want)
	}
	if got := blk.SigningPrefix(); !bytes.Equal(got, want[:len(want)-8]) {
		t.Errorf("SigningPrefix = %x, want %x", got, want[:len(want)-8])
	}
}

func TestComputeDigest_EveryFieldBound(t *testing.T) {
	base := testBlock()
	orig := base.ComputeDigest()

	mutations := map[string]func(b *Block){
		"index":       func(b *Block) { b.Header.Index++ },
		"timestamp":   func(b *Block) { b.Header.Timestamp++ },
		"prev digest": func(b *Block) { b.Header.PrevDigest[0] ^= 0xff },
		"nonce":       func(b *Block) { b.Header.Nonce++ },
		"amount":      func(b *Block) { b.Payload.(Transactions)[1].Amount++ },
		"recipient":   func(b *Block) { b.Payload.(Transactions)[1].Recipient = "Eve" },
		"order": func(b *Block) {
			txs := b.Payload.(Transactions)
			txs[1], txs[2] = txs[2], txs[1]
		},
		"drop record": func(b *Block) { b.Payload = b.Payload.(Transactions)[:2] },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			b := base.Clone()
			mutate(b)
			if b.ComputeDigest() == orig {
				t.Errorf("mutating %s did not change the digest", name)
			}
		})
	}
}

func TestComputeDigest_PayloadKindBound(t *testing.T) {
	// Same bytes under different kinds must not collide.
	empty := Transactions{}
	a := New(1, 1, empty, types.Hash{})
	b := New(1, 1, Text(string(empty.CanonicalBytes())), types.Hash{})
	if a.Digest == b.Digest {
		t.Error("payload kind is not bound into the digest")
	}
}

func TestSeal(t *testing.T) {
	blk := testBlock()
	blk.Header.Nonce = 7
	want := blk.ComputeDigest()
	blk.Header.Nonce = 0

	if err := blk.Seal(7, want); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !blk.IsSealed() || blk.Header.Nonce != 7 || blk.Digest != want {
		t.Errorf("sealed block = nonce %d digest %s, want nonce 7 digest %s", blk.Header.Nonce, blk.Digest, want)
	}

	if err := blk.Seal(8, want); !errors.Is(err, ErrAlreadySealed) {
		t.Errorf("second Seal err = %v, want ErrAlreadySealed", err)
	}
}

func TestSeal_DigestMismatch(t *testing.T) {
	blk := testBlock()
	err := blk.Seal(5, types.Hash{0x01})
	if !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("Seal with wrong digest err = %v, want ErrDigestMismatch", err)
	}
	if blk.IsSealed() || blk.Header.Nonce != 0 {
		t.Error("failed Seal must leave the block unchanged")
	}
}

func TestClone_Independent(t *testing.T) {
	blk := testBlock()
	c := blk.Clone()
	c.Header.Index = 99
	c.Payload.(Transactions)[0].Amount = 1

	if blk.Header.Index != 1 {
		t.Error("Clone shares header with original")
	}
	if blk.Payload.(Transactions)[0].Amount != 100 {
		t.Error("Clone shares payload records with original")
	}
}

func TestVerifyDigest(t *testing.T) {
	blk := testBlock()
	if err := blk.VerifyDigest(); err != nil {
		t.Fatalf("VerifyDigest on fresh block: %v", err)
	}
	blk.Header.Timestamp++
	if err := blk.VerifyDigest(); !errors.Is(err, ErrDigestMismatch) {
		t.Errorf("VerifyDigest after tamper = %v, want ErrDigestMismatch", err)
	}
}

func TestValidate(t *testing.T) {
	var nilBlock *Block
	if err := nilBlock.Validate(); !errors.Is(err, ErrNilBlock) {
		t.Errorf("nil block err = %v, want ErrNilBlock", err)
	}
	if err := nilBlock.VerifyDigest(); !errors.Is(err, ErrNilBlock) {
		t.Errorf("nil block VerifyDigest err = %v, want ErrNilBlock", err)
	}
	if err := (&Block{}).Validate(); !errors.Is(err, ErrNilHeader) {
		t.Errorf("nil header err = %v, want ErrNilHeader", err)
	}
	if err := (&Block{Header: &Header{}}).Validate(); !errors.Is(err, ErrNilPayload) {
		t.Errorf("nil payload err = %v, want ErrNilPayload", err)
	}
}

func TestJSON_GenesisShape(t *testing.T) {
	blk := New(0, 1640995200000, Text("Genesis Block"), types.Hash{})
	data, err := json.Marshal(blk)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal map: %v", err)
	}
	if fields["payload"] != "Genesis Block" {
		t.Errorf("payload = %v, want Genesis Block", fields["payload"])
	}
	if fields["previous_digest"] != GenesisPrevDigest {
		t.Errorf("previous_digest = %v, want %q", fields["previous_digest"], GenesisPrevDigest)
	}
}

func TestJSON_Roundtrip(t *testing.T) {
	blk := testBlock()
	data, err := json.Marshal(blk)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got Block
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.IsSealed() {
		t.Error("decoded block should be sealed")
	}
	if got.Digest != blk.Digest || got.ComputeDigest() != blk.Digest {
		t.Errorf("decoded digest = %s, want %s", got.ComputeDigest(), blk.Digest)
	}
	txs, ok := got.Payload.(Transactions)
	if !ok || len(txs) != 3 || !txs[0].IsReward() {
		t.Errorf("decoded payload = %#v, want 3 records with reward first", got.Payload)
	}
}

func TestJSON_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"null payload", `{"index":1,"payload":null}`},
		{"object payload", `{"index":1,"payload":{}}`},
		{"null record", `{"index":1,"payload":[null]}`},
		{"bad previous digest", `{"index":1,"payload":"x","previous_digest":"zz"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var blk Block
			if err := json.Unmarshal([]byte(tt.data), &blk); err == nil {
				t.Errorf("Unmarshal(%s) succeeded, want error", tt.data)
			}
		})
	}
}
