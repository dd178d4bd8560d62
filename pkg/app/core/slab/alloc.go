// Package slab implements the fixed-capacity, pageable, typed arena
// that backs every other on-core data structure in AquaDEX: critbit
// indices, FIFO payload vecs, settlement entries, trade records.
//
// A region is a []byte of fixed size decided at market-account
// creation (no heap, no reallocation afterward). It is partitioned
// into a small header, a table of at most TypeMax logical container
// descriptors, and a fixed number of 16KiB pages. A page is assigned
// to exactly one type and holds that type's records packed
// back-to-back after a per-page leading blob reserved for the type's
// own overhead fields (free-lists, bump counters, etc. — see vec.go
// and the critbit package).
//
// Pages are never returned to the global pool once assigned; this
// keeps page_index addressing stable and avoids fragmentation
// bookkeeping, at the cost of being unable to reclaim a page whose
// type later frees every record on it.
package slab

import (
	"encoding/binary"
	"fmt"

	"github.com/aquadex/core/pkg/aqerr"
)

const (
	// PageSize is the fixed byte size of every page in a region.
	PageSize = 16384
	// TypeMax is the maximum number of logical containers one region
	// can host (bid critbit, bid vec, ask critbit, ask vec, ...).
	TypeMax = 16
	// TypeMaxPages bounds how many physical pages a single type may
	// claim over the region's lifetime.
	TypeMaxPages = 1024

	noPage = ^uint16(0) // sentinel: slot not yet assigned a physical page
)

// TypePage describes one logical container hosted in a region.
type TypePage struct {
	HeaderSize uint64                  // bytes per record for this type
	OffsetSize uint64                  // bytes reserved at the start of every page of this type
	AllocItems uint64                  // exact count of live records (I6)
	AllocPages [TypeMaxPages]uint16    // physical page index per logical page slot, noPage if unassigned
	pageCount  int                     // how many entries of AllocPages are in use
}

// Alloc is a typed, paged arena. One Alloc backs one market account's
// worth of on-core state (e.g. the bid side's critbit+vec pair, or a
// settlement log's critbit+vec pair).
type Alloc struct {
	TotalPages    uint16
	TopUnusedPage uint16
	Types         [TypeMax]TypePage
	pages         [][]byte // physical pages, len == TopUnusedPage, cap == TotalPages
}

// NewAlloc creates an empty region with room for totalPages pages.
func NewAlloc(totalPages uint16) *Alloc {
	a := &Alloc{
		TotalPages: totalPages,
		pages:      make([][]byte, 0, totalPages),
	}
	for t := range a.Types {
		for i := range a.Types[t].AllocPages {
			a.Types[t].AllocPages[i] = noPage
		}
	}
	return a
}

// RegisterType fixes the record size and per-page overhead for a
// logical container. Must be called once per type before any
// push/remove/get against it. headerSize is the fixed byte size of
// one record; offsetSize is the leading blob reserved on every page
// assigned to this type (only the first such page's blob carries
// meaningful container metadata — see vec.go / critbit.Tree).
func (a *Alloc) RegisterType(typeID int, headerSize, offsetSize uint64) error {
	if typeID < 0 || typeID >= TypeMax {
		return fmt.Errorf("slab: type id %d out of range: %w", typeID, aqerr.ErrInvariant)
	}
	if headerSize == 0 || offsetSize+headerSize > PageSize {
		return fmt.Errorf("slab: type %d record layout does not fit a page: %w", typeID, aqerr.ErrInvariant)
	}
	tp := &a.Types[typeID]
	tp.HeaderSize = headerSize
	tp.OffsetSize = offsetSize
	return nil
}

// itemsPerPage returns how many fixed-size records fit in one page of
// this type, after the leading overhead blob.
func (a *Alloc) itemsPerPage(typeID int) uint64 {
	tp := &a.Types[typeID]
	return (PageSize - tp.OffsetSize) / tp.HeaderSize
}

// pageSlot ensures the logical page slot (0-based within the type) has
// a backing physical page, consuming one from the global pool if
// necessary. Returns the physical page index.
func (a *Alloc) pageSlot(typeID int, slot int) (uint16, error) {
	tp := &a.Types[typeID]
	if slot >= TypeMaxPages {
		return 0, fmt.Errorf("slab: type %d exceeded %d pages: %w", typeID, TypeMaxPages, aqerr.ErrCapacity)
	}
	if tp.AllocPages[slot] != noPage {
		return tp.AllocPages[slot], nil
	}
	if a.TopUnusedPage >= a.TotalPages {
		return 0, fmt.Errorf("slab: region exhausted (%d pages): %w", a.TotalPages, aqerr.ErrCapacity)
	}
	phys := a.TopUnusedPage
	a.pages = append(a.pages, make([]byte, PageSize))
	a.TopUnusedPage++
	tp.AllocPages[slot] = phys
	if slot >= tp.pageCount {
		tp.pageCount = slot + 1
	}
	return phys, nil
}

// recordBytes returns a mutable slice over the record at logical index
// idx within typeID, allocating pages as needed.
func (a *Alloc) RecordBytes(typeID int, idx uint64) ([]byte, error) {
	tp := &a.Types[typeID]
	perPage := a.itemsPerPage(typeID)
	slot := int(idx / perPage)
	within := idx % perPage
	phys, err := a.pageSlot(typeID, slot)
	if err != nil {
		return nil, err
	}
	start := tp.OffsetSize + within*tp.HeaderSize
	page := a.pages[phys]
	return page[start : start+tp.HeaderSize], nil
}

// recordBytesExisting is like recordBytes but fails NotFound instead of
// allocating a page, for reads of indices that must already exist.
func (a *Alloc) RecordBytesExisting(typeID int, idx uint64) ([]byte, error) {
	tp := &a.Types[typeID]
	perPage := a.itemsPerPage(typeID)
	slot := int(idx / perPage)
	within := idx % perPage
	if slot >= tp.pageCount || tp.AllocPages[slot] == noPage {
		return nil, fmt.Errorf("slab: index %d not mapped: %w", idx, aqerr.ErrNotFound)
	}
	phys := tp.AllocPages[slot]
	start := tp.OffsetSize + within*tp.HeaderSize
	page := a.pages[phys]
	return page[start : start+tp.HeaderSize], nil
}

// overhead returns the mutable per-container overhead blob, which
// lives in the first physical page ever assigned to typeID. Callers
// must have pushed at least once (or call ensureOverhead).
func (a *Alloc) Overhead(typeID int) ([]byte, error) {
	tp := &a.Types[typeID]
	if tp.pageCount == 0 {
		return nil, fmt.Errorf("slab: type %d has no pages yet: %w", typeID, aqerr.ErrInvariant)
	}
	phys := tp.AllocPages[0]
	return a.pages[phys][:tp.OffsetSize], nil
}

// ensureOverhead guarantees the first page of typeID exists so the
// overhead blob can be read/written before any record is pushed.
func (a *Alloc) EnsureOverhead(typeID int) ([]byte, error) {
	if _, err := a.pageSlot(typeID, 0); err != nil {
		return nil, err
	}
	return a.Overhead(typeID)
}

// AllocItems returns the live record count for typeID (I6).
func (a *Alloc) AllocItems(typeID int) uint64 {
	return a.Types[typeID].AllocItems
}

// Clone deep-copies the region, including every physical page. Used by
// preview mode (spec §4.4): the match loop runs against the clone and
// the clone is discarded, so no write ever reaches the persistent
// region.
func (a *Alloc) Clone() *Alloc {
	out := &Alloc{
		TotalPages:    a.TotalPages,
		TopUnusedPage: a.TopUnusedPage,
		Types:         a.Types,
		pages:         make([][]byte, len(a.pages)),
	}
	for i, p := range a.pages {
		cp := make([]byte, len(p))
		copy(cp, p)
		out.pages[i] = cp
	}
	return out
}

func le32(b []byte) uint32       { return binary.LittleEndian.Uint32(b) }
func putLE32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func le64(b []byte) uint64       { return binary.LittleEndian.Uint64(b) }
func putLE64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
