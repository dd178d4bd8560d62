package orderbook

import (
	"testing"

	"github.com/aquadex/core/pkg/app/core/slab"
)

func owner(b byte) [32]byte {
	var o [32]byte
	o[31] = b
	return o
}

func TestPostBestRemove(t *testing.T) {
	a := slab.NewAlloc(8)
	ob, err := NewOrderbook(a)
	if err != nil {
		t.Fatalf("NewOrderbook: %v", err)
	}

	// Three asks at distinct prices: best is lowest.
	if _, _, err := ob.Asks.Post(105, 1, owner(1), 10, 0); err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, _, err := ob.Asks.Post(100, 2, owner(2), 20, 0); err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, _, err := ob.Asks.Post(110, 3, owner(3), 30, 0); err != nil {
		t.Fatalf("post: %v", err)
	}

	best, ok, err := ob.Asks.Best()
	if err != nil || !ok {
		t.Fatalf("best: ok=%v err=%v", ok, err)
	}
	if best.Price != 100 || best.QtyRemaining != 20 {
		t.Fatalf("best = %+v, want price 100 qty 20", best)
	}

	// Three bids at distinct prices: best is highest, despite the
	// bit-inverted key ordering ascending by real price underneath.
	if _, _, err := ob.Bids.Post(90, 4, owner(4), 5, 0); err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, _, err := ob.Bids.Post(95, 5, owner(5), 6, 0); err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, _, err := ob.Bids.Post(80, 6, owner(6), 7, 0); err != nil {
		t.Fatalf("post: %v", err)
	}

	bestBid, ok, err := ob.Bids.Best()
	if err != nil || !ok {
		t.Fatalf("best bid: ok=%v err=%v", ok, err)
	}
	if bestBid.Price != 95 {
		t.Fatalf("best bid price = %d, want 95", bestBid.Price)
	}

	removed, err := ob.Asks.Remove(best.OrderID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Owner != owner(2) {
		t.Fatalf("removed owner mismatch")
	}
	next, ok, err := ob.Asks.Best()
	if err != nil || !ok {
		t.Fatalf("best after remove: ok=%v err=%v", ok, err)
	}
	if next.Price != 105 {
		t.Fatalf("next best price = %d, want 105", next.Price)
	}
}

func TestSameSideSequenceTieBreak(t *testing.T) {
	a := slab.NewAlloc(8)
	ob, err := NewOrderbook(a)
	if err != nil {
		t.Fatalf("NewOrderbook: %v", err)
	}

	id1, _, err := ob.Asks.Post(100, 1, owner(1), 10, 0)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, _, err := ob.Asks.Post(100, 2, owner(2), 10, 0); err != nil {
		t.Fatalf("post: %v", err)
	}

	best, ok, err := ob.Asks.Best()
	if err != nil || !ok {
		t.Fatalf("best: ok=%v err=%v", ok, err)
	}
	if !best.OrderID.Equal(id1) {
		t.Fatalf("expected earlier sequence to win tie at same price")
	}
}

func TestSetQtyRemainingPartialFill(t *testing.T) {
	a := slab.NewAlloc(8)
	ob, err := NewOrderbook(a)
	if err != nil {
		t.Fatalf("NewOrderbook: %v", err)
	}
	_, slot, err := ob.Bids.Post(100, 1, owner(1), 50, 0)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if err := ob.Bids.SetQtyRemaining(slot, 20); err != nil {
		t.Fatalf("set qty: %v", err)
	}
	best, ok, err := ob.Bids.Best()
	if err != nil || !ok {
		t.Fatalf("best: ok=%v err=%v", ok, err)
	}
	if best.QtyRemaining != 20 {
		t.Fatalf("qty remaining = %d, want 20", best.QtyRemaining)
	}
}

func TestRemoveMissingOrder(t *testing.T) {
	a := slab.NewAlloc(4)
	ob, err := NewOrderbook(a)
	if err != nil {
		t.Fatalf("NewOrderbook: %v", err)
	}
	if _, err := ob.Asks.Remove(OrderID(Ask, 1, 1)); err == nil {
		t.Fatalf("expected not-found removing from empty book")
	}
}
