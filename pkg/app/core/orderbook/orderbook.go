// Package orderbook implements the two-sided, price-time-ordered book
// described in spec §4.3: a (CritbitTree, SlabVec) pair per side,
// sharing one region with the rest of a market account.
package orderbook

import (
	"encoding/binary"
	"fmt"

	"github.com/aquadex/core/pkg/aqerr"
	"github.com/aquadex/core/pkg/app/core/critbit"
	"github.com/aquadex/core/pkg/app/core/slab"
)

// Side identifies which book a resting order lives on.
type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// payloadSize is the fixed SlabVec record size for a resting order.
const payloadSize = 16 // qty_remaining u64, expiry i64

// Type ids an Orderbook claims within its region.
const (
	TypeBidTree = 0
	TypeBidVec  = 1
	TypeAskTree = 2
	TypeAskVec  = 3
)

// RestingOrder is the caller-visible join of a critbit leaf and its vec
// payload: everything a match step or a book snapshot needs about one
// resting order.
type RestingOrder struct {
	OrderID      critbit.Key128
	Owner        [32]byte
	Price        uint64
	QtyRemaining uint64
	Expiry       int64
	Slot         uint32
}

// OrderbookSide is one side of a market.
//
// order_id packs (coded_price << 64 | sequence). Bid prices are
// bit-inverted before packing so that critbit's natural ascending key
// order tracks descending real price (spec §3); both sides therefore
// always peek their best resting order via Min, never Max.
type OrderbookSide struct {
	side Side
	tree *critbit.Tree
	vec  *slab.Vec
}

// NewOrderbookSide registers a fresh critbit+vec pair for one side.
func NewOrderbookSide(alloc *slab.Alloc, side Side, treeType, vecType int) (*OrderbookSide, error) {
	tree, err := critbit.NewTree(alloc, treeType)
	if err != nil {
		return nil, fmt.Errorf("orderbook: new %s tree: %w", side, err)
	}
	vec, err := slab.NewVec(alloc, vecType, payloadSize)
	if err != nil {
		return nil, fmt.Errorf("orderbook: new %s vec: %w", side, err)
	}
	return &OrderbookSide{side: side, tree: tree, vec: vec}, nil
}

// OpenOrderbookSide re-attaches to a side already registered and
// populated, e.g. after the region was restored from storage.
func OpenOrderbookSide(alloc *slab.Alloc, side Side, treeType, vecType int) *OrderbookSide {
	return &OrderbookSide{
		side: side,
		tree: critbit.OpenTree(alloc, treeType),
		vec:  slab.OpenVec(alloc, vecType),
	}
}

func codePrice(side Side, price uint64) uint64 {
	if side == Bid {
		return ^price
	}
	return price
}

func decodePrice(side Side, coded uint64) uint64 {
	if side == Bid {
		return ^coded
	}
	return coded
}

// OrderID packs a resting order's tree key for this side.
func OrderID(side Side, price, seq uint64) critbit.Key128 {
	return critbit.Key128{Hi: codePrice(side, price), Lo: seq}
}

func encodePayload(dst []byte, qty uint64, expiry int64) {
	binary.LittleEndian.PutUint64(dst[0:8], qty)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(expiry))
}

func decodePayload(rec []byte) (qty uint64, expiry int64) {
	qty = binary.LittleEndian.Uint64(rec[0:8])
	expiry = int64(binary.LittleEndian.Uint64(rec[8:16]))
	return
}

// Post inserts a new resting order at (price, seq) and returns its
// order id and vec slot. Fails ErrCapacity if either the tree or the
// vec refuses (spec §4.3 BookFull).
func (s *OrderbookSide) Post(price, seq uint64, owner [32]byte, qty uint64, expiry int64) (critbit.Key128, uint32, error) {
	orderID := OrderID(s.side, price, seq)
	slot, err := s.vec.Push(func(dst []byte) { encodePayload(dst, qty, expiry) })
	if err != nil {
		return critbit.Key128{}, 0, fmt.Errorf("orderbook: post %s: %w", s.side, err)
	}
	if err := s.tree.Insert(orderID, owner, slot); err != nil {
		_ = s.vec.Remove(slot) // undo the vec push; insert is the operation that failed
		return critbit.Key128{}, 0, fmt.Errorf("orderbook: post %s: %w", s.side, err)
	}
	return orderID, slot, nil
}

// Best returns the best (price-time priority) resting order, or
// ok=false if the side is empty.
func (s *OrderbookSide) Best() (RestingOrder, bool, error) {
	leaf, ok, err := s.tree.Min()
	if err != nil || !ok {
		return RestingOrder{}, ok, err
	}
	rec, err := s.vec.Get(leaf.Slot)
	if err != nil {
		return RestingOrder{}, false, err
	}
	qty, expiry := decodePayload(rec)
	return RestingOrder{
		OrderID:      leaf.Key,
		Owner:        leaf.Owner,
		Price:        decodePrice(s.side, leaf.Key.Hi),
		QtyRemaining: qty,
		Expiry:       expiry,
		Slot:         leaf.Slot,
	}, true, nil
}

// Get returns the resident order at orderID without detaching it, or
// ok=false if it is not resident.
func (s *OrderbookSide) Get(orderID critbit.Key128) (RestingOrder, bool, error) {
	leaf, ok, err := s.tree.Get(orderID)
	if err != nil || !ok {
		return RestingOrder{}, ok, err
	}
	rec, err := s.vec.Get(leaf.Slot)
	if err != nil {
		return RestingOrder{}, false, err
	}
	qty, expiry := decodePayload(rec)
	return RestingOrder{
		OrderID:      leaf.Key,
		Owner:        leaf.Owner,
		Price:        decodePrice(s.side, leaf.Key.Hi),
		QtyRemaining: qty,
		Expiry:       expiry,
		Slot:         leaf.Slot,
	}, true, nil
}

// Remove detaches an order by id, freeing its tree leaf and vec slot,
// and returns the order's last-known state for refund/rebate
// accounting. Fails ErrNotFound if orderID is not resident.
func (s *OrderbookSide) Remove(orderID critbit.Key128) (RestingOrder, error) {
	leaf, ok, err := s.tree.Get(orderID)
	if err != nil {
		return RestingOrder{}, err
	}
	if !ok {
		return RestingOrder{}, fmt.Errorf("orderbook: order not resident: %w", aqerr.ErrNotFound)
	}
	rec, err := s.vec.Get(leaf.Slot)
	if err != nil {
		return RestingOrder{}, err
	}
	qty, expiry := decodePayload(rec)
	if _, err := s.tree.Remove(orderID); err != nil {
		return RestingOrder{}, err
	}
	if err := s.vec.Remove(leaf.Slot); err != nil {
		return RestingOrder{}, err
	}
	return RestingOrder{
		OrderID:      orderID,
		Owner:        leaf.Owner,
		Price:        decodePrice(s.side, orderID.Hi),
		QtyRemaining: qty,
		Expiry:       expiry,
		Slot:         leaf.Slot,
	}, nil
}

// SetQtyRemaining overwrites the resting quantity of the order at slot
// in place, used by the match loop to record a partial fill without
// reinserting the tree leaf.
func (s *OrderbookSide) SetQtyRemaining(slot uint32, qty uint64) error {
	rec, err := s.vec.Get(slot)
	if err != nil {
		return err
	}
	_, expiry := decodePayload(rec)
	encodePayload(rec, qty, expiry)
	return nil
}

// Len returns the number of resident orders on this side (I6).
func (s *OrderbookSide) Len() (uint64, error) { return s.tree.Len() }

// Levels walks the side in best-to-worst price-time order (an
// ascending critbit cursor: bid keys are pre-inverted, so ascending
// key order already tracks descending real price on both sides, same
// as Best's use of Min), stopping after limit orders (0 means no
// limit). Used by read-only book snapshots (API/UI layers).
func (s *OrderbookSide) Levels(limit int) ([]RestingOrder, error) {
	cur := critbit.NewAscendingCursor(s.tree)
	var out []RestingOrder
	for {
		leaf, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		rec, err := s.vec.Get(leaf.Slot)
		if err != nil {
			return nil, err
		}
		qty, expiry := decodePayload(rec)
		out = append(out, RestingOrder{
			OrderID:      leaf.Key,
			Owner:        leaf.Owner,
			Price:        decodePrice(s.side, leaf.Key.Hi),
			QtyRemaining: qty,
			Expiry:       expiry,
			Slot:         leaf.Slot,
		})
		if limit > 0 && len(out) >= limit {
			return out, nil
		}
	}
}

// Orderbook holds both sides of one market, sharing a single region.
type Orderbook struct {
	Bids *OrderbookSide
	Asks *OrderbookSide
}

// NewOrderbook registers a fresh bid/ask pair within alloc.
func NewOrderbook(alloc *slab.Alloc) (*Orderbook, error) {
	bids, err := NewOrderbookSide(alloc, Bid, TypeBidTree, TypeBidVec)
	if err != nil {
		return nil, err
	}
	asks, err := NewOrderbookSide(alloc, Ask, TypeAskTree, TypeAskVec)
	if err != nil {
		return nil, err
	}
	return &Orderbook{Bids: bids, Asks: asks}, nil
}

// OpenOrderbook re-attaches to a region already populated with both
// sides, e.g. after restoring from storage.
func OpenOrderbook(alloc *slab.Alloc) *Orderbook {
	return &Orderbook{
		Bids: OpenOrderbookSide(alloc, Bid, TypeBidTree, TypeBidVec),
		Asks: OpenOrderbookSide(alloc, Ask, TypeAskTree, TypeAskVec),
	}
}

// Side returns the side an order of the given Side rests on.
func (ob *Orderbook) Side(side Side) *OrderbookSide {
	if side == Bid {
		return ob.Bids
	}
	return ob.Asks
}

// Opposite returns the side a taker of the given Side matches against.
func (ob *Orderbook) Opposite(side Side) *OrderbookSide {
	if side == Bid {
		return ob.Asks
	}
	return ob.Bids
}
