package settlement

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aquadex/core/pkg/app/core/slab"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	alloc := slab.NewAlloc(64)
	l, err := NewLog(alloc, common.HexToHash("0xaa"), 16)
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}
	return l
}

func TestCreditDebitRoundTrip(t *testing.T) {
	l := newTestLog(t)
	owner := common.HexToHash("0x1")

	if err := l.Credit(owner, 100, 200, 1000); err != nil {
		t.Fatalf("credit: %v", err)
	}
	entry, ok, err := l.Get(owner)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if entry.MktBalance != 100 || entry.PrcBalance != 200 || entry.TsUpdated != 1000 {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	if err := l.Credit(owner, 50, 0, 2000); err != nil {
		t.Fatalf("second credit: %v", err)
	}
	entry, _, _ = l.Get(owner)
	if entry.MktBalance != 150 || entry.TsUpdated != 2000 {
		t.Fatalf("expected accumulated balance, got %+v", entry)
	}

	count, err := l.ItemCount()
	if err != nil || count != 1 {
		t.Fatalf("item count = %d, err=%v, want 1", count, err)
	}

	if err := l.Debit(owner, 50, 100); err != nil {
		t.Fatalf("debit: %v", err)
	}
	entry, ok, _ = l.Get(owner)
	if !ok || entry.MktBalance != 100 || entry.PrcBalance != 100 {
		t.Fatalf("unexpected entry after debit: %+v ok=%v", entry, ok)
	}

	if err := l.Debit(owner, 100, 100); err != nil {
		t.Fatalf("full debit: %v", err)
	}
	if _, ok, _ := l.Get(owner); ok {
		t.Fatalf("expected entry to be removed once both balances reach zero")
	}
	count, _ = l.ItemCount()
	if count != 0 {
		t.Fatalf("item count = %d, want 0", count)
	}
}

func TestDebitInsufficientBalance(t *testing.T) {
	l := newTestLog(t)
	owner := common.HexToHash("0x1")
	if err := l.Credit(owner, 10, 10, 1); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := l.Debit(owner, 100, 0); err == nil {
		t.Fatalf("expected underflow error")
	}
}

func TestDebitUnknownOwner(t *testing.T) {
	l := newTestLog(t)
	if err := l.Debit(common.HexToHash("0x9"), 1, 1); err == nil {
		t.Fatalf("expected not-found error")
	}
}

func TestNeedsRolloverAndUnlink(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 10; i++ {
		owner := common.BigToHash(common.Big1)
		owner[31] = byte(i)
		if err := l.Credit(owner, 1, 1, int64(i)); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
	}
	needs, err := l.NeedsRollover(8)
	if err != nil {
		t.Fatalf("needs rollover: %v", err)
	}
	if !needs {
		t.Fatalf("expected rollover required with 10/16 slots used and k=8")
	}

	empty := newTestLog(t)
	if _, _, err := empty.Unlink(); err != nil {
		t.Fatalf("unlink on empty log: %v", err)
	}

	owner := common.HexToHash("0x1")
	if err := l.Credit(owner, 1, 1, 1); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, _, err := l.Unlink(); err == nil {
		t.Fatalf("expected unlink to fail on a non-empty log")
	}
}

func TestNeighborsAndStatus(t *testing.T) {
	l := newTestLog(t)
	prev := common.HexToHash("0x10")
	next := common.HexToHash("0x20")
	if err := l.SetNeighbors(prev, next); err != nil {
		t.Fatalf("set neighbors: %v", err)
	}
	gotPrev, gotNext, err := l.Neighbors()
	if err != nil || gotPrev != prev || gotNext != next {
		t.Fatalf("neighbors = %x,%x err=%v", gotPrev, gotNext, err)
	}
	items, sPrev, sNext, err := l.LogStatus()
	if err != nil || items != 0 || sPrev != prev || sNext != next {
		t.Fatalf("log status mismatch: items=%d prev=%x next=%x err=%v", items, sPrev, sNext, err)
	}
}
