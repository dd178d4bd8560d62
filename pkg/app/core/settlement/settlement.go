// Package settlement implements SettlementLog (spec §4.5): a per-owner
// ledger of escrowed balances that match fills are credited into and
// withdrawals are debited from, distinct from the live Vault transfer
// path used for posts, cancels, and taker proceeds.
package settlement

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aquadex/core/pkg/aqerr"
	"github.com/aquadex/core/pkg/app/core/critbit"
	"github.com/aquadex/core/pkg/app/core/slab"
)

// Type ids a Log claims within its region.
const (
	TypeOwnerTree = 0
	TypeEntryVec  = 1
	TypeHeaderVec = 2
)

const entrySize = 24 // mkt_balance u64, prc_balance u64, ts_updated i64 (spec §6)

// headerRecSize: market_id, prev_log_id, next_log_id (32 bytes each,
// zero meaning "none"), item_count u64, entry_cap u64.
const headerRecSize = 32*3 + 8 + 8

// Entry is the caller-visible view of one owner's settlement balance.
type Entry struct {
	Owner      common.Hash
	MktBalance uint64
	PrcBalance uint64
	TsUpdated  int64
}

// Log is one settlement-log account: an owner-keyed critbit index over
// a vec of Entry, plus a header naming the market and chain neighbours
// (spec §4.5). Two Logs (A/B) back one market so rollover never blocks
// a credit (spec §3 MarketState).
type Log struct {
	tree   *critbit.Tree
	vec    *slab.Vec
	header *slab.Vec
}

// ownerKey folds a 32-byte owner id into a 128-bit critbit key by
// XOR-ing its two 16-byte halves, so every byte of the id affects the
// key. The full owner is still carried verbatim on every tree leaf;
// lookups match on the folded key alone.
func ownerKey(owner common.Hash) critbit.Key128 {
	return critbit.Key128{
		Hi: binary.BigEndian.Uint64(owner[0:8]) ^ binary.BigEndian.Uint64(owner[16:24]),
		Lo: binary.BigEndian.Uint64(owner[8:16]) ^ binary.BigEndian.Uint64(owner[24:32]),
	}
}

func encodeEntry(dst []byte, mkt, prc uint64, ts int64) {
	binary.LittleEndian.PutUint64(dst[0:8], mkt)
	binary.LittleEndian.PutUint64(dst[8:16], prc)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(ts))
}

func decodeEntry(rec []byte) (mkt, prc uint64, ts int64) {
	mkt = binary.LittleEndian.Uint64(rec[0:8])
	prc = binary.LittleEndian.Uint64(rec[8:16])
	ts = int64(binary.LittleEndian.Uint64(rec[16:24]))
	return
}

func encodeHeader(dst []byte, marketID, prev, next common.Hash, itemCount, entryCap uint64) {
	copy(dst[0:32], marketID[:])
	copy(dst[32:64], prev[:])
	copy(dst[64:96], next[:])
	binary.LittleEndian.PutUint64(dst[96:104], itemCount)
	binary.LittleEndian.PutUint64(dst[104:112], entryCap)
}

func decodeHeader(rec []byte) (marketID, prev, next common.Hash, itemCount, entryCap uint64) {
	copy(marketID[:], rec[0:32])
	copy(prev[:], rec[32:64])
	copy(next[:], rec[64:96])
	itemCount = binary.LittleEndian.Uint64(rec[96:104])
	entryCap = binary.LittleEndian.Uint64(rec[104:112])
	return
}

// NewLog registers a fresh, empty settlement log within alloc.
// entryCap is the fixed entry capacity used for rollover-required
// detection (spec §4.4 "fewer than K free entry slots").
func NewLog(alloc *slab.Alloc, marketID common.Hash, entryCap uint64) (*Log, error) {
	tree, err := critbit.NewTree(alloc, TypeOwnerTree)
	if err != nil {
		return nil, fmt.Errorf("settlement: new tree: %w", err)
	}
	vec, err := slab.NewVec(alloc, TypeEntryVec, entrySize)
	if err != nil {
		return nil, fmt.Errorf("settlement: new entry vec: %w", err)
	}
	header, err := slab.NewVec(alloc, TypeHeaderVec, headerRecSize)
	if err != nil {
		return nil, fmt.Errorf("settlement: new header vec: %w", err)
	}
	if _, err := header.Push(func(dst []byte) {
		encodeHeader(dst, marketID, common.Hash{}, common.Hash{}, 0, entryCap)
	}); err != nil {
		return nil, fmt.Errorf("settlement: init header: %w", err)
	}
	return &Log{tree: tree, vec: vec, header: header}, nil
}

// OpenLog re-attaches to a log already registered and populated, e.g.
// after the region was restored from storage.
func OpenLog(alloc *slab.Alloc) *Log {
	return &Log{
		tree:   critbit.OpenTree(alloc, TypeOwnerTree),
		vec:    slab.OpenVec(alloc, TypeEntryVec),
		header: slab.OpenVec(alloc, TypeHeaderVec),
	}
}

func (l *Log) headerRec() ([]byte, error) { return l.header.Get(0) }

// MarketID returns the market this log belongs to.
func (l *Log) MarketID() (common.Hash, error) {
	rec, err := l.headerRec()
	if err != nil {
		return common.Hash{}, err
	}
	marketID, _, _, _, _ := decodeHeader(rec)
	return marketID, nil
}

// Neighbors returns the chain's prev/next log ids (zero = none).
func (l *Log) Neighbors() (prev, next common.Hash, err error) {
	rec, err := l.headerRec()
	if err != nil {
		return common.Hash{}, common.Hash{}, err
	}
	_, prev, next, _, _ = decodeHeader(rec)
	return prev, next, nil
}

// SetNeighbors overwrites the chain's prev/next log ids, used when
// splicing a freshly rolled-over log into the doubly linked chain.
func (l *Log) SetNeighbors(prev, next common.Hash) error {
	rec, err := l.headerRec()
	if err != nil {
		return err
	}
	marketID, _, _, itemCount, entryCap := decodeHeader(rec)
	encodeHeader(rec, marketID, prev, next, itemCount, entryCap)
	return nil
}

// ItemCount returns the number of resident entries (spec §3 I5 tie-break
// and §4.5 header.item_count).
func (l *Log) ItemCount() (uint64, error) {
	rec, err := l.headerRec()
	if err != nil {
		return 0, err
	}
	_, _, _, itemCount, _ := decodeHeader(rec)
	return itemCount, nil
}

func (l *Log) setItemCount(n uint64) error {
	rec, err := l.headerRec()
	if err != nil {
		return err
	}
	marketID, prev, next, _, entryCap := decodeHeader(rec)
	encodeHeader(rec, marketID, prev, next, n, entryCap)
	return nil
}

// NeedsRollover reports whether fewer than k entry slots remain free.
func (l *Log) NeedsRollover(k uint64) (bool, error) {
	rec, err := l.headerRec()
	if err != nil {
		return false, err
	}
	_, _, _, itemCount, entryCap := decodeHeader(rec)
	if itemCount >= entryCap {
		return true, nil
	}
	return entryCap-itemCount < k, nil
}

// LogStatus reports the read-only view exposed by the host's
// log_status operation (spec §6).
func (l *Log) LogStatus() (items uint64, prev, next common.Hash, err error) {
	rec, err := l.headerRec()
	if err != nil {
		return 0, common.Hash{}, common.Hash{}, err
	}
	_, prev, next, items, _ = decodeHeader(rec)
	return items, prev, next, nil
}

// Get returns owner's current balance entry, if resident.
func (l *Log) Get(owner common.Hash) (Entry, bool, error) {
	leaf, ok, err := l.tree.Get(ownerKey(owner))
	if err != nil || !ok {
		return Entry{}, ok, err
	}
	rec, err := l.vec.Get(leaf.Slot)
	if err != nil {
		return Entry{}, false, err
	}
	mkt, prc, ts := decodeEntry(rec)
	return Entry{Owner: owner, MktBalance: mkt, PrcBalance: prc, TsUpdated: ts}, true, nil
}

// Credit upserts owner's balance, adding dMkt/dPrc. On first credit for
// a previously absent owner, fails ErrCapacity if the tree or vec
// refuse — the caller must then retry with the rollover flag (spec
// §4.5).
func (l *Log) Credit(owner common.Hash, dMkt, dPrc uint64, now int64) error {
	key := ownerKey(owner)
	leaf, ok, err := l.tree.Get(key)
	if err != nil {
		return err
	}
	if ok {
		rec, err := l.vec.Get(leaf.Slot)
		if err != nil {
			return err
		}
		mkt, prc, _ := decodeEntry(rec)
		encodeEntry(rec, mkt+dMkt, prc+dPrc, now)
		return nil
	}

	slot, err := l.vec.Push(func(dst []byte) { encodeEntry(dst, dMkt, dPrc, now) })
	if err != nil {
		return fmt.Errorf("settlement: credit %x: %w", owner, err)
	}
	if err := l.tree.Insert(key, owner, slot); err != nil {
		_ = l.vec.Remove(slot)
		return fmt.Errorf("settlement: credit %x: %w", owner, err)
	}
	count, err := l.ItemCount()
	if err != nil {
		return err
	}
	return l.setItemCount(count + 1)
}

// Debit subtracts dMkt/dPrc from owner's balance, failing ErrUnderflow
// if either balance would go negative. If both balances reach zero the
// entry is removed entirely (spec §4.5).
func (l *Log) Debit(owner common.Hash, dMkt, dPrc uint64) error {
	key := ownerKey(owner)
	leaf, ok, err := l.tree.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("settlement: debit %x: no entry: %w", owner, aqerr.ErrNotFound)
	}
	rec, err := l.vec.Get(leaf.Slot)
	if err != nil {
		return err
	}
	mkt, prc, ts := decodeEntry(rec)
	if mkt < dMkt || prc < dPrc {
		return fmt.Errorf("settlement: debit %x exceeds balance: %w", owner, aqerr.ErrUnderflow)
	}
	mkt -= dMkt
	prc -= dPrc
	if mkt == 0 && prc == 0 {
		if _, err := l.tree.Remove(key); err != nil {
			return err
		}
		if err := l.vec.Remove(leaf.Slot); err != nil {
			return err
		}
		count, err := l.ItemCount()
		if err != nil {
			return err
		}
		return l.setItemCount(count - 1)
	}
	encodeEntry(rec, mkt, prc, ts)
	return nil
}

// Scan visits every resident entry in owner-key order, stopping early if
// fn returns false. Used by the vault_deposit migration op (spec §6) to
// walk a log's owners without knowing them in advance.
func (l *Log) Scan(fn func(Entry) bool) error {
	cur := critbit.NewAscendingCursor(l.tree)
	for {
		leaf, ok, err := cur.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		rec, err := l.vec.Get(leaf.Slot)
		if err != nil {
			return err
		}
		mkt, prc, ts := decodeEntry(rec)
		if !fn(Entry{Owner: common.Hash(leaf.Owner), MktBalance: mkt, PrcBalance: prc, TsUpdated: ts}) {
			return nil
		}
	}
}

// Unlink validates the log is empty and returns its current prev/next
// pointers so the caller can splice them together. Callers must check
// independently that this log is not an active settlement head (spec
// §4.5); Log itself has no notion of "active".
func (l *Log) Unlink() (prev, next common.Hash, err error) {
	count, err := l.ItemCount()
	if err != nil {
		return common.Hash{}, common.Hash{}, err
	}
	if count != 0 {
		return common.Hash{}, common.Hash{}, fmt.Errorf("settlement: unlink: log has %d live entries: %w", count, aqerr.ErrInvariant)
	}
	return l.Neighbors()
}
