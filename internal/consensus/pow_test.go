package consensus

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	klog "github.com/Klingon-tech/hashchain/internal/log"
	"github.com/Klingon-tech/hashchain/pkg/block"
	"github.com/Klingon-tech/hashchain/pkg/tx"
	"github.com/Klingon-tech/hashchain/pkg/types"
)

func testBlock() *block.Block {
	payload := block.Transactions{
		tx.NewReward("Miner123", 100),
		tx.New("Alice", "Bob", 10),
	}
	return block.New(1, 1627986378169, payload, types.Hash{0xaa})
}

func TestNewPoW_DifficultyTooHigh(t *testing.T) {
	_, err := NewPoW(types.MaxDifficulty + 1)
	if !errors.Is(err, ErrDifficultyTooHigh) {
		t.Fatalf("NewPoW(65) err = %v, want ErrDifficultyTooHigh", err)
	}
	if _, err := NewPoW(types.MaxDifficulty); err != nil {
		t.Fatalf("NewPoW(64) err = %v, want nil", err)
	}
}

func TestPoW_SealAndVerify(t *testing.T) {
	for _, d := range []uint64{0, 1, 2, 3} {
		pow, err := NewPoW(d)
		if err != nil {
			t.Fatal(err)
		}

		blk := testBlock()
		if err := pow.Seal(blk); err != nil {
			t.Fatalf("difficulty %d: Seal: %v", d, err)
		}
		if !blk.IsSealed() {
			t.Fatalf("difficulty %d: block not sealed", d)
		}
		if !strings.HasPrefix(blk.Digest.String(), strings.Repeat("0", int(d))) {
			t.Errorf("difficulty %d: digest %s lacks leading zeros", d, blk.Digest)
		}
		if err := pow.VerifyBlock(blk); err != nil {
			t.Errorf("difficulty %d: VerifyBlock after Seal: %v", d, err)
		}
	}
}

func TestPoW_ZeroDifficultyKeepsNonceZero(t *testing.T) {
	pow, _ := NewPoW(0)
	blk := testBlock()
	initial := blk.Digest

	if err := pow.Seal(blk); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if blk.Header.Nonce != 0 {
		t.Errorf("nonce = %d, want 0", blk.Header.Nonce)
	}
	if blk.Digest != initial {
		t.Error("difficulty 0 seal changed the digest")
	}
}

func TestPoW_SealAlreadySealed(t *testing.T) {
	pow, _ := NewPoW(1)
	blk := testBlock()
	if err := pow.Seal(blk); err != nil {
		t.Fatal(err)
	}
	if err := pow.Seal(blk); !errors.Is(err, block.ErrAlreadySealed) {
		t.Fatalf("second Seal err = %v, want ErrAlreadySealed", err)
	}
}

func TestPoW_VerifyBlock_Rejects(t *testing.T) {
	pow, _ := NewPoW(types.MaxDifficulty)
	blk := testBlock()
	if err := pow.VerifyBlock(blk); !errors.Is(err, ErrInsufficientWork) {
		t.Fatalf("VerifyBlock at max difficulty = %v, want ErrInsufficientWork", err)
	}

	easy, _ := NewPoW(0)
	blk.Header.Nonce = 99
	if err := easy.VerifyBlock(blk); !errors.Is(err, block.ErrDigestMismatch) {
		t.Fatalf("VerifyBlock after tamper = %v, want ErrDigestMismatch", err)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	prefix := testBlock().SigningPrefix()
	n1, d1, err := Search(context.Background(), prefix, 2, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	n2, d2, err := Search(context.Background(), prefix, 2, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n1 != n2 || d1 != d2 {
		t.Errorf("Search not deterministic: (%d, %s) vs (%d, %s)", n1, d1, n2, d2)
	}

	// Restarting past the found nonce finds a later one.
	n3, _, err := Search(context.Background(), prefix, 2, n1+1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n3 <= n1 {
		t.Errorf("restart from %d found %d, want > %d", n1+1, n3, n1)
	}
}

func TestSearch_Stride(t *testing.T) {
	prefix := testBlock().SigningPrefix()
	nonce, _, err := Search(context.Background(), prefix, 1, 3, 4)
	if err != nil {
		t.Fatal(err)
	}
	if nonce%4 != 3 {
		t.Errorf("nonce %d outside stride partition 3 mod 4", nonce)
	}
}

func TestSearch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Search(ctx, testBlock().SigningPrefix(), types.MaxDifficulty, 0, 1)
	if !errors.Is(err, ErrSealCancelled) {
		t.Fatalf("Search err = %v, want ErrSealCancelled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Search err = %v, want wrapped context.Canceled", err)
	}
}

func TestSearch_NonceExhausted(t *testing.T) {
	// Starting at the top of the nonce space leaves room for one attempt.
	_, _, err := Search(context.Background(), []byte("x"), types.MaxDifficulty, ^uint64(0), 1)
	if !errors.Is(err, ErrNonceExhausted) {
		t.Fatalf("Search err = %v, want ErrNonceExhausted", err)
	}
}

func TestPoW_SealWithCancel_Timeout(t *testing.T) {
	pow, _ := NewPoW(types.MaxDifficulty)
	blk := testBlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := pow.SealWithCancel(ctx, blk)
	if !errors.Is(err, ErrSealCancelled) {
		t.Fatalf("SealWithCancel err = %v, want ErrSealCancelled", err)
	}
	if blk.IsSealed() || blk.Header.Nonce != 0 {
		t.Error("cancelled seal must leave the block unsealed at nonce 0")
	}
}

func TestPoW_SealParallel(t *testing.T) {
	pow, _ := NewPoW(3)
	pow.Threads = 4

	blk := testBlock()
	if err := pow.Seal(blk); err != nil {
		t.Fatalf("parallel Seal: %v", err)
	}

	// The result must verify with single-threaded recomputation.
	single, _ := NewPoW(3)
	if err := single.VerifyBlock(blk); err != nil {
		t.Fatalf("VerifyBlock after parallel Seal: %v", err)
	}
}

func TestPoW_SealParallel_Cancelled(t *testing.T) {
	pow, _ := NewPoW(types.MaxDifficulty)
	pow.Threads = 4

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	blk := testBlock()
	if err := pow.SealWithCancel(ctx, blk); !errors.Is(err, ErrSealCancelled) {
		t.Fatalf("parallel SealWithCancel err = %v, want ErrSealCancelled", err)
	}
	if blk.IsSealed() {
		t.Error("cancelled parallel seal sealed the block")
	}
}

func TestPoW_SealParallel_LogsCancellation(t *testing.T) {
	var buf bytes.Buffer
	klog.SetOutput(&buf, "debug")
	defer klog.SetOutput(os.Stdout, "info")

	pow, _ := NewPoW(types.MaxDifficulty)
	pow.Threads = 2
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := pow.SealWithCancel(ctx, testBlock()); !errors.Is(err, ErrSealCancelled) {
		t.Fatalf("SealWithCancel err = %v, want ErrSealCancelled", err)
	}
	out := buf.String()
	for _, want := range []string{`"component":"consensus"`, "Parallel nonce search", "Seal cancelled"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}
