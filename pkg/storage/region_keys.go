package storage

import "fmt"

// Region key schema for Pebble storage. Every market account (the book,
// each settlement log head, the trade log) persists as one opaque
// slab.Alloc byte blob, addressed by symbol + a fixed per-account kind
// tag so a restart can reattach to exactly the regions a market was
// created with:
//
//	region:<symbol>:<kind>  -> marshaled slab.Alloc
//	meta:<symbol>           -> marshaled market metadata (JSON)

const (
	prefixRegion = "region:"
	prefixMeta   = "meta:"
)

// RegionKind names one of the fixed per-market byte regions.
type RegionKind string

const (
	RegionBook    RegionKind = "book"
	RegionSettleA RegionKind = "settleA"
	RegionSettleB RegionKind = "settleB"
	RegionTrade   RegionKind = "trade"
)

func regionKey(symbol string, kind RegionKind) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixRegion, symbol, kind))
}

func metaKey(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixMeta, symbol))
}

// keyUpperBound returns the smallest key greater than every key that
// starts with prefix, for use as an exclusive iterator upper bound.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
