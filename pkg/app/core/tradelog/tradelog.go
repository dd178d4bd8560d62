// Package tradelog implements TradeLog (spec §4.6): a single-type,
// fixed-capacity ring buffer of TradeRecord, append-only from the
// matching engine's point of view and scanned sequentially by readers.
package tradelog

import (
	"encoding/binary"
	"fmt"

	"github.com/aquadex/core/pkg/aqerr"
	"github.com/aquadex/core/pkg/app/core/slab"
)

// TypeRecordVec is the sole type this package registers within a region.
const TypeRecordVec = 0

// recordSize: event_type[16], action_id u64, trade_id u64,
// maker_order_id[16], maker_filled u8, maker[32], taker[32],
// taker_side u8, amount u64, price u64, ts i64 (spec §6).
const recordSize = 16 + 8 + 8 + 16 + 1 + 32 + 32 + 1 + 8 + 8 + 8

// headerRecSize: trade_count u64, entry_max u64, next_trade_id u64.
const headerRecSize = 8 + 8 + 8

const TypeHeaderVec = 1

// Record is the caller-visible view of one TradeRecord.
type Record struct {
	EventType    [16]byte
	ActionID     uint64
	TradeID      uint64
	MakerOrderID [16]byte
	MakerFilled  bool
	Maker        [32]byte
	Taker        [32]byte
	TakerSide    uint8
	Amount       uint64
	Price        uint64
	Ts           int64
}

func encodeRecord(dst []byte, r Record) {
	copy(dst[0:16], r.EventType[:])
	binary.LittleEndian.PutUint64(dst[16:24], r.ActionID)
	binary.LittleEndian.PutUint64(dst[24:32], r.TradeID)
	copy(dst[32:48], r.MakerOrderID[:])
	if r.MakerFilled {
		dst[48] = 1
	} else {
		dst[48] = 0
	}
	copy(dst[49:81], r.Maker[:])
	copy(dst[81:113], r.Taker[:])
	dst[113] = r.TakerSide
	binary.LittleEndian.PutUint64(dst[114:122], r.Amount)
	binary.LittleEndian.PutUint64(dst[122:130], r.Price)
	binary.LittleEndian.PutUint64(dst[130:138], uint64(r.Ts))
}

func decodeRecord(rec []byte) Record {
	var r Record
	copy(r.EventType[:], rec[0:16])
	r.ActionID = binary.LittleEndian.Uint64(rec[16:24])
	r.TradeID = binary.LittleEndian.Uint64(rec[24:32])
	copy(r.MakerOrderID[:], rec[32:48])
	r.MakerFilled = rec[48] != 0
	copy(r.Maker[:], rec[49:81])
	copy(r.Taker[:], rec[81:113])
	r.TakerSide = rec[113]
	r.Amount = binary.LittleEndian.Uint64(rec[114:122])
	r.Price = binary.LittleEndian.Uint64(rec[122:130])
	r.Ts = int64(binary.LittleEndian.Uint64(rec[130:138]))
	return r
}

func encodeHeader(dst []byte, tradeCount, entryMax, nextTradeID uint64) {
	binary.LittleEndian.PutUint64(dst[0:8], tradeCount)
	binary.LittleEndian.PutUint64(dst[8:16], entryMax)
	binary.LittleEndian.PutUint64(dst[16:24], nextTradeID)
}

func decodeHeader(rec []byte) (tradeCount, entryMax, nextTradeID uint64) {
	tradeCount = binary.LittleEndian.Uint64(rec[0:8])
	entryMax = binary.LittleEndian.Uint64(rec[8:16])
	nextTradeID = binary.LittleEndian.Uint64(rec[16:24])
	return
}

// Log is a fixed-capacity ring of TradeRecord. Slots 0..entry_max-1 are
// pre-allocated at creation; Append writes at trade_count % entry_max
// until full, then silently overwrites the oldest slot (spec §4.6).
type Log struct {
	vec    *slab.Vec
	header *slab.Vec
}

// NewLog registers a fresh log with the given ring capacity.
func NewLog(alloc *slab.Alloc, entryMax uint64) (*Log, error) {
	if entryMax == 0 {
		return nil, fmt.Errorf("tradelog: entry_max must be > 0: %w", aqerr.ErrBadQty)
	}
	vec, err := slab.NewVec(alloc, TypeRecordVec, recordSize)
	if err != nil {
		return nil, fmt.Errorf("tradelog: new vec: %w", err)
	}
	header, err := slab.NewVec(alloc, TypeHeaderVec, headerRecSize)
	if err != nil {
		return nil, fmt.Errorf("tradelog: new header: %w", err)
	}
	if _, err := header.Push(func(dst []byte) { encodeHeader(dst, 0, entryMax, 1) }); err != nil {
		return nil, fmt.Errorf("tradelog: init header: %w", err)
	}
	// Pre-allocate the ring's backing slots up front so Append can
	// address any slot in [0, entry_max) by handle once the buffer
	// wraps, instead of growing the vec one push at a time forever.
	for i := uint64(0); i < entryMax; i++ {
		if _, err := vec.Push(func(dst []byte) {}); err != nil {
			return nil, fmt.Errorf("tradelog: pre-allocate ring: %w", err)
		}
	}
	return &Log{vec: vec, header: header}, nil
}

// OpenLog re-attaches to a log already registered and populated.
func OpenLog(alloc *slab.Alloc) *Log {
	return &Log{
		vec:    slab.OpenVec(alloc, TypeRecordVec),
		header: slab.OpenVec(alloc, TypeHeaderVec),
	}
}

func (l *Log) headerRec() ([]byte, error) { return l.header.Get(0) }

// NextTradeID returns the id the next Append will assign, then advances
// the counter. trade_id is strictly monotonic across the market's
// lifetime (spec I4) even as the ring recycles slots.
func (l *Log) NextTradeID() (uint64, error) {
	rec, err := l.headerRec()
	if err != nil {
		return 0, err
	}
	tradeCount, entryMax, nextTradeID := decodeHeader(rec)
	encodeHeader(rec, tradeCount, entryMax, nextTradeID+1)
	return nextTradeID, nil
}

// Append writes r into the ring at trade_count % entry_max, overwriting
// the oldest record once the ring is full, and advances trade_count.
// Callers must have already assigned r.TradeID via NextTradeID.
func (l *Log) Append(r Record) error {
	rec, err := l.headerRec()
	if err != nil {
		return err
	}
	tradeCount, entryMax, nextTradeID := decodeHeader(rec)
	slotHandle := uint32(tradeCount % entryMax)
	slot, err := l.vec.Get(slotHandle)
	if err != nil {
		return fmt.Errorf("tradelog: append: %w", err)
	}
	encodeRecord(slot, r)
	encodeHeader(rec, tradeCount+1, entryMax, nextTradeID)
	return nil
}

// Count returns the number of Append calls made over the log's
// lifetime (may exceed entry_max once the ring has wrapped).
func (l *Log) Count() (uint64, error) {
	rec, err := l.headerRec()
	if err != nil {
		return 0, err
	}
	tradeCount, _, _ := decodeHeader(rec)
	return tradeCount, nil
}

// Capacity returns the ring's fixed entry_max.
func (l *Log) Capacity() (uint64, error) {
	rec, err := l.headerRec()
	if err != nil {
		return 0, err
	}
	_, entryMax, _ := decodeHeader(rec)
	return entryMax, nil
}

// Scan calls fn for every currently resident record, oldest first. It
// stops early if fn returns false. Resident count is min(trade_count,
// entry_max); filtering beyond that is left to the caller (spec §4.6:
// "filtering is a client concern").
func (l *Log) Scan(fn func(Record) bool) error {
	rec, err := l.headerRec()
	if err != nil {
		return err
	}
	tradeCount, entryMax, _ := decodeHeader(rec)
	resident := tradeCount
	if resident > entryMax {
		resident = entryMax
	}
	start := uint64(0)
	if tradeCount > entryMax {
		start = tradeCount % entryMax
	}
	for i := uint64(0); i < resident; i++ {
		handle := uint32((start + i) % entryMax)
		raw, err := l.vec.Get(handle)
		if err != nil {
			return fmt.Errorf("tradelog: scan: %w", err)
		}
		if !fn(decodeRecord(raw)) {
			break
		}
	}
	return nil
}
