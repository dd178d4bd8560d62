package slab

import (
	"encoding/binary"
	"fmt"

	"github.com/aquadex/core/pkg/aqerr"
)

// typePageWireSize is the bit-exact on-disk size of one TypePage entry:
// u64 header_size, u64 offset_size, u64 alloc_items, u16[TypeMaxPages] alloc_pages.
const typePageWireSize = 8 + 8 + 8 + 2*TypeMaxPages

// headerWireSize is u16 top_unused_page followed by TypeMax TypePage entries.
const headerWireSize = 2 + TypeMax*typePageWireSize

// MarshalBinary renders the region in the bit-exact persisted layout
// from spec §6: u16 top_unused_page, TypeMax*TypePage, then
// TotalPages*PageSize bytes of page data (unassigned pages zeroed).
func (a *Alloc) MarshalBinary() ([]byte, error) {
	out := make([]byte, headerWireSize+int(a.TotalPages)*PageSize)
	binary.LittleEndian.PutUint16(out[0:2], a.TopUnusedPage)

	off := 2
	for t := 0; t < TypeMax; t++ {
		tp := &a.Types[t]
		putLE64(out[off:off+8], tp.HeaderSize)
		putLE64(out[off+8:off+16], tp.OffsetSize)
		putLE64(out[off+16:off+24], tp.AllocItems)
		pOff := off + 24
		for i := 0; i < TypeMaxPages; i++ {
			binary.LittleEndian.PutUint16(out[pOff+i*2:pOff+i*2+2], tp.AllocPages[i])
		}
		off += typePageWireSize
	}

	base := headerWireSize
	for i, page := range a.pages {
		copy(out[base+i*PageSize:base+(i+1)*PageSize], page)
	}
	return out, nil
}

// UnmarshalBinary restores a region previously produced by MarshalBinary.
// totalPages is not itself stored in the wire format; TotalPages is
// recovered from the length of the page data that follows the header,
// so a zero Alloc may be used as the receiver.
func (a *Alloc) UnmarshalBinary(data []byte) error {
	if len(data) < headerWireSize {
		return fmt.Errorf("slab: truncated region header: %w", aqerr.ErrInvariant)
	}
	a.TopUnusedPage = binary.LittleEndian.Uint16(data[0:2])

	off := 2
	for t := 0; t < TypeMax; t++ {
		tp := &a.Types[t]
		tp.HeaderSize = le64(data[off : off+8])
		tp.OffsetSize = le64(data[off+8 : off+16])
		tp.AllocItems = le64(data[off+16 : off+24])
		pOff := off + 24
		tp.pageCount = 0
		for i := 0; i < TypeMaxPages; i++ {
			v := binary.LittleEndian.Uint16(data[pOff+i*2 : pOff+i*2+2])
			tp.AllocPages[i] = v
			if v != noPage {
				tp.pageCount = i + 1
			}
		}
		off += typePageWireSize
	}

	base := headerWireSize
	remaining := len(data) - base
	if remaining%PageSize != 0 {
		return fmt.Errorf("slab: region page data not a multiple of PageSize: %w", aqerr.ErrInvariant)
	}
	npages := remaining / PageSize
	a.TotalPages = uint16(npages)
	a.pages = make([][]byte, a.TopUnusedPage)
	for i := 0; i < int(a.TopUnusedPage); i++ {
		page := make([]byte, PageSize)
		copy(page, data[base+i*PageSize:base+(i+1)*PageSize])
		a.pages[i] = page
	}
	return nil
}
