package slab

import (
	"fmt"
	"math"

	"github.com/aquadex/core/pkg/aqerr"
)

// noFree is the free-top/next-free sentinel meaning "no free slot".
const noFree = math.MaxUint32

// Vec is an indexed sequence of fixed-size records over one SlabAlloc
// type, with O(1) push/remove via a free-top stack. It backs
// OrderbookSide payloads and SettlementLog entries (spec §4.1/§6).
//
// Overhead layout (8 bytes, spec §6): u32 free_top, u32 next_index.
type Vec struct {
	alloc  *Alloc
	typeID int
}

// NewVec registers typeID on alloc as a Vec container with the given
// fixed record size, and returns a handle to it. Must be called once
// per (alloc, typeID) pair before use.
func NewVec(alloc *Alloc, typeID int, recordSize uint64) (*Vec, error) {
	if err := alloc.RegisterType(typeID, recordSize, 8); err != nil {
		return nil, err
	}
	v := &Vec{alloc: alloc, typeID: typeID}
	ov, err := alloc.EnsureOverhead(typeID)
	if err != nil {
		return nil, err
	}
	putLE32(ov[0:4], noFree)  // free_top
	putLE32(ov[4:8], 0)       // next_index
	return v, nil
}

// OpenVec re-attaches to a type already registered and populated (e.g.
// after UnmarshalBinary restored the region from storage).
func OpenVec(alloc *Alloc, typeID int) *Vec {
	return &Vec{alloc: alloc, typeID: typeID}
}

func (v *Vec) overhead() ([]byte, error) { return v.alloc.Overhead(v.typeID) }

func (v *Vec) freeTop() (uint32, error) {
	ov, err := v.overhead()
	if err != nil {
		return 0, err
	}
	return le32(ov[0:4]), nil
}

func (v *Vec) setFreeTop(x uint32) error {
	ov, err := v.overhead()
	if err != nil {
		return err
	}
	putLE32(ov[0:4], x)
	return nil
}

func (v *Vec) nextIndex() (uint32, error) {
	ov, err := v.overhead()
	if err != nil {
		return 0, err
	}
	return le32(ov[4:8]), nil
}

func (v *Vec) setNextIndex(x uint32) error {
	ov, err := v.overhead()
	if err != nil {
		return err
	}
	putLE32(ov[4:8], x)
	return nil
}

// Push writes a new record, recycling a free slot if one exists, and
// returns its handle. encode is called with a mutable slice sized to
// exactly the type's record size.
func (v *Vec) Push(encode func(dst []byte)) (uint32, error) {
	top, err := v.freeTop()
	if err != nil {
		return 0, err
	}

	if top != noFree {
		rec, err := v.alloc.RecordBytesExisting(v.typeID, uint64(top))
		if err != nil {
			return 0, fmt.Errorf("slab vec: corrupt free-top chain: %w", aqerr.ErrInvariant)
		}
		nextFree := le32(rec[0:4])
		if err := v.setFreeTop(nextFree); err != nil {
			return 0, err
		}
		encode(rec)
		v.alloc.Types[v.typeID].AllocItems++
		return top, nil
	}

	idx, err := v.nextIndex()
	if err != nil {
		return 0, err
	}
	rec, err := v.alloc.RecordBytes(v.typeID, uint64(idx))
	if err != nil {
		return 0, err
	}
	encode(rec)
	if err := v.setNextIndex(idx + 1); err != nil {
		return 0, err
	}
	v.alloc.Types[v.typeID].AllocItems++
	return idx, nil
}

// Remove pushes handle onto the free-top stack. The record's bytes are
// not zeroed (spec §4.1): its first 4 bytes are overwritten with the
// next-free link, the rest is logically dead until recycled by Push.
func (v *Vec) Remove(handle uint32) error {
	rec, err := v.alloc.RecordBytesExisting(v.typeID, uint64(handle))
	if err != nil {
		return err
	}
	top, err := v.freeTop()
	if err != nil {
		return err
	}
	putLE32(rec[0:4], top)
	if err := v.setFreeTop(handle); err != nil {
		return err
	}
	v.alloc.Types[v.typeID].AllocItems--
	return nil
}

// Get returns a mutable view of the record at handle. Callers must not
// hold it across another mutating Vec/Alloc call (spec §5: never alias
// two mutable views onto the same slot).
func (v *Vec) Get(handle uint32) ([]byte, error) {
	idx, err := v.nextIndex()
	if err != nil {
		return nil, err
	}
	if uint64(handle) >= uint64(idx) {
		return nil, fmt.Errorf("slab vec: handle %d >= next_index %d: %w", handle, idx, aqerr.ErrInvariant)
	}
	return v.alloc.RecordBytesExisting(v.typeID, uint64(handle))
}

// Len returns the live record count for this type (I6).
func (v *Vec) Len() uint64 { return v.alloc.AllocItems(v.typeID) }
