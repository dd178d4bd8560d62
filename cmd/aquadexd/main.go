// Command aquadexd runs the AquaDEX matching engine as a standalone
// process: it loads config, reattaches every market persisted in the
// region store (or bootstraps a devnet market on first start), serves
// the REST/WebSocket API, and snapshots every live market back to disk
// on shutdown.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/aquadex/core/params"
	"github.com/aquadex/core/pkg/api"
	"github.com/aquadex/core/pkg/app/core/engine"
	"github.com/aquadex/core/pkg/app/core/vault"
	"github.com/aquadex/core/pkg/storage"
	"github.com/aquadex/core/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Logging.FilePath)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Logging.FilePath)

	store, err := storage.NewRegionStore(cfg.Storage.DataDir)
	if err != nil {
		sugar.Fatalw("region_store_open_failed", "err", err)
	}
	defer store.Close()

	// TODO: wire a persistent vault once one exists; the in-memory
	// vault means account balances reset across restarts even though
	// market/book state does not.
	v := vault.NewMemVault()
	eng := engine.NewEngine(v, sugar)

	symbols, err := store.ListMarketSymbols()
	if err != nil {
		sugar.Fatalw("list_markets_failed", "err", err)
	}

	if len(symbols) == 0 && cfg.Devnet.Enabled {
		if err := bootstrapDevnetMarket(eng, cfg); err != nil {
			sugar.Fatalw("devnet_bootstrap_failed", "err", err)
		}
		sugar.Infow("devnet_market_bootstrapped", "symbol", cfg.Devnet.Symbol)
	} else {
		for _, symbol := range symbols {
			if err := restoreMarket(eng, store, symbol); err != nil {
				sugar.Fatalw("market_restore_failed", "symbol", symbol, "err", err)
			}
			sugar.Infow("market_restored", "symbol", symbol)
		}
	}

	apiServer := api.NewServer(eng, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		sugar.Infow("api_server_starting", "addr", cfg.API.ListenAddr)
		if err := apiServer.Start(cfg.API.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutdown_signal_received")

	for _, m := range eng.Markets() {
		if err := snapshotMarket(eng, store, m.Symbol); err != nil {
			sugar.Errorw("market_snapshot_failed", "symbol", m.Symbol, "err", err)
			continue
		}
		sugar.Infow("market_snapshotted", "symbol", m.Symbol)
	}
}

// bootstrapDevnetMarket derives deterministic vault/settlement account
// ids from the market's symbol so repeated devnet starts (before any
// state is persisted) are reproducible.
func bootstrapDevnetMarket(eng *engine.Engine, cfg params.Config) error {
	d := cfg.Devnet
	return eng.CreateMarket(engine.CreateMarketParams{
		Symbol:          d.Symbol,
		Config:          d.Config,
		BookPages:       d.BookPages,
		SettlePages:     d.SettlePages,
		TradePages:      d.TradePages,
		SettleEntryCap:  d.SettleEntryCap,
		TradeEntryMax:   d.TradeEntryMax,
		SettleAID:       deriveSeed(d.Symbol, "settleA"),
		SettleBID:       deriveSeed(d.Symbol, "settleB"),
		MktVaultAccount: deriveSeed(d.Symbol, "mktVault"),
		PrcVaultAccount: deriveSeed(d.Symbol, "prcVault"),
	})
}

func deriveSeed(symbol, tag string) common.Hash {
	return ethcrypto.Keccak256Hash([]byte(symbol), []byte(tag))
}

// restoreMarket reattaches a market persisted by a prior run: its four
// regions and its metadata must both be present.
func restoreMarket(eng *engine.Engine, store *storage.RegionStore, symbol string) error {
	meta, ok, err := store.LoadMarketMeta(symbol)
	if err != nil {
		return err
	}
	if !ok {
		return os.ErrNotExist
	}

	book, ok, err := store.LoadRegion(symbol, storage.RegionBook)
	if err != nil {
		return err
	}
	if !ok {
		return os.ErrNotExist
	}
	settleA, ok, err := store.LoadRegion(symbol, storage.RegionSettleA)
	if err != nil {
		return err
	}
	if !ok {
		return os.ErrNotExist
	}
	settleB, ok, err := store.LoadRegion(symbol, storage.RegionSettleB)
	if err != nil {
		return err
	}
	if !ok {
		return os.ErrNotExist
	}
	trade, ok, err := store.LoadRegion(symbol, storage.RegionTrade)
	if err != nil {
		return err
	}
	if !ok {
		return os.ErrNotExist
	}

	return eng.RestoreMarket(engine.RestoreMarketParams{
		Symbol:          meta.Symbol,
		Config:          meta.Config,
		BookAlloc:       book,
		SettleAAlloc:    settleA,
		SettleBAlloc:    settleB,
		TradeAlloc:      trade,
		SettleAID:       meta.SettleAID,
		SettleBID:       meta.SettleBID,
		MktVaultAccount: meta.MktVaultAccount,
		PrcVaultAccount: meta.PrcVaultAccount,
		ActionCtr:       meta.ActionCtr,
		AccruedFees:     meta.AccruedFees,
	})
}

// snapshotMarket is restoreMarket's inverse: it maps engine.MarketSnapshot
// onto storage.MarketMeta/region writes. This mapping is deliberately kept
// here rather than in either pkg/engine or pkg/storage, since neither
// package is allowed to import the other.
func snapshotMarket(eng *engine.Engine, store *storage.RegionStore, symbol string) error {
	snap, err := eng.Snapshot(symbol)
	if err != nil {
		return err
	}
	if err := store.SaveRegion(symbol, storage.RegionBook, snap.BookAlloc); err != nil {
		return err
	}
	if err := store.SaveRegion(symbol, storage.RegionSettleA, snap.SettleAAlloc); err != nil {
		return err
	}
	if err := store.SaveRegion(symbol, storage.RegionSettleB, snap.SettleBAlloc); err != nil {
		return err
	}
	if err := store.SaveRegion(symbol, storage.RegionTrade, snap.TradeAlloc); err != nil {
		return err
	}
	return store.SaveMarketMeta(storage.MarketMeta{
		Symbol:          snap.Symbol,
		Config:          snap.Config,
		SettleAID:       snap.SettleAID,
		SettleBID:       snap.SettleBID,
		MktVaultAccount: snap.MktVaultAccount,
		PrcVaultAccount: snap.PrcVaultAccount,
		ActionCtr:       snap.ActionCtr,
		AccruedFees:     snap.AccruedFees,
	})
}
