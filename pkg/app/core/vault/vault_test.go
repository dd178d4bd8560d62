package vault

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestMemVaultMove(t *testing.T) {
	v := NewMemVault()
	src := common.HexToHash("0x1")
	dst := common.HexToHash("0x2")
	v.Seed(src, 100)

	if err := v.Move(context.Background(), src, dst, 40); err != nil {
		t.Fatalf("move: %v", err)
	}
	if v.Balance(src) != 60 {
		t.Fatalf("src balance = %d, want 60", v.Balance(src))
	}
	if v.Balance(dst) != 40 {
		t.Fatalf("dst balance = %d, want 40", v.Balance(dst))
	}

	if err := v.Move(context.Background(), src, dst, 1000); err == nil {
		t.Fatalf("expected insufficient-balance error")
	}

	if err := v.Move(context.Background(), src, dst, 0); err != nil {
		t.Fatalf("zero-amount move should be a no-op: %v", err)
	}
}
