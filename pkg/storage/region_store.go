// Package storage persists each market's byte regions and immutable
// configuration to Pebble so a process restart can reattach to state
// produced before the restart (spec §4.1's regions are otherwise
// entirely in-process). Grounded on the teacher's PebbleStore: same
// db.Set/db.Get-with-closer idiom, generalized from one block/cert
// keyspace to one region/meta keyspace per market. Failed reads and
// writes are returned as wrapped errors; nothing here panics.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/aquadex/core/pkg/app/core/market"
	"github.com/aquadex/core/pkg/app/core/slab"
)

// RegionStore is the Pebble-backed persistence layer for AquaDEX market
// state: the four slab.Alloc regions per market plus the metadata
// needed to reattach to them (market config, settlement log ids, vault
// account ids, running counters).
type RegionStore struct {
	db *pebble.DB
}

// NewRegionStore opens (creating if absent) a Pebble database at path.
func NewRegionStore(path string) (*RegionStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("storage: open region store: %w", err)
	}
	return &RegionStore{db: db}, nil
}

func (s *RegionStore) Close() error { return s.db.Close() }

// SaveRegion persists one market account's region as a bit-exact blob.
func (s *RegionStore) SaveRegion(symbol string, kind RegionKind, a *slab.Alloc) error {
	data, err := a.MarshalBinary()
	if err != nil {
		return fmt.Errorf("storage: marshal region %s/%s: %w", symbol, kind, err)
	}
	if err := s.db.Set(regionKey(symbol, kind), data, pebble.Sync); err != nil {
		return fmt.Errorf("storage: save region %s/%s: %w", symbol, kind, err)
	}
	return nil
}

// LoadRegion restores a previously saved region. The region's page
// count is recovered from the saved blob's length. ok is false if no
// region was ever saved under this key.
func (s *RegionStore) LoadRegion(symbol string, kind RegionKind) (a *slab.Alloc, ok bool, err error) {
	data, closer, err := s.db.Get(regionKey(symbol, kind))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: load region %s/%s: %w", symbol, kind, err)
	}
	defer closer.Close()

	out := &slab.Alloc{}
	buf := make([]byte, len(data))
	copy(buf, data)
	if err := out.UnmarshalBinary(buf); err != nil {
		return nil, false, fmt.Errorf("storage: corrupt region %s/%s: %w", symbol, kind, err)
	}
	return out, true, nil
}

// MarketMeta is everything besides the four regions' raw bytes that a
// restart needs to reattach to a market: its immutable Config (so
// market.NewMarket can re-derive the same AdminSeed), the ids under
// which its two settlement heads are registered, its vault accounts,
// and its last-persisted running counters (spec §4.7 ActionCtr /
// AccruedFees, carried across restarts so a resumed market doesn't
// silently reset its fee accounting).
type MarketMeta struct {
	Symbol string
	Config market.Config

	SettleAID, SettleBID             common.Hash
	MktVaultAccount, PrcVaultAccount common.Hash

	ActionCtr   uint64
	AccruedFees uint64
}

// SaveMarketMeta persists m's metadata. Overwrites any prior value.
func (s *RegionStore) SaveMarketMeta(m MarketMeta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("storage: marshal market meta %s: %w", m.Symbol, err)
	}
	if err := s.db.Set(metaKey(m.Symbol), data, pebble.Sync); err != nil {
		return fmt.Errorf("storage: save market meta %s: %w", m.Symbol, err)
	}
	return nil
}

// LoadMarketMeta restores a previously saved market's metadata.
func (s *RegionStore) LoadMarketMeta(symbol string) (MarketMeta, bool, error) {
	data, closer, err := s.db.Get(metaKey(symbol))
	if err == pebble.ErrNotFound {
		return MarketMeta{}, false, nil
	}
	if err != nil {
		return MarketMeta{}, false, fmt.Errorf("storage: load market meta %s: %w", symbol, err)
	}
	defer closer.Close()

	var out MarketMeta
	if jsonErr := json.Unmarshal(data, &out); jsonErr != nil {
		return MarketMeta{}, false, fmt.Errorf("storage: corrupt market meta %s: %w", symbol, jsonErr)
	}
	return out, true, nil
}

// ListMarketSymbols returns every symbol with persisted metadata, for
// reattaching every known market at process start.
func (s *RegionStore) ListMarketSymbols() ([]string, error) {
	lower := []byte(prefixMeta)
	upper := keyUpperBound(lower)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("storage: list markets: %w", err)
	}
	defer iter.Close()

	var symbols []string
	for iter.First(); iter.Valid(); iter.Next() {
		symbols = append(symbols, string(iter.Key()[len(prefixMeta):]))
	}
	return symbols, nil
}
