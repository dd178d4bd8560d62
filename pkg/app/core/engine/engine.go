// Package engine is the host-facing facade (spec §6): it resolves a
// market by symbol and dispatches to its matchengine.State, the way the
// teacher's perp.App resolved a symbol to an orderbook before dispatching
// a transaction to it.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/aquadex/core/pkg/aqerr"
	"github.com/aquadex/core/pkg/app/core/critbit"
	"github.com/aquadex/core/pkg/app/core/market"
	"github.com/aquadex/core/pkg/app/core/matchengine"
	"github.com/aquadex/core/pkg/app/core/orderbook"
	"github.com/aquadex/core/pkg/app/core/settlement"
	"github.com/aquadex/core/pkg/app/core/slab"
	"github.com/aquadex/core/pkg/app/core/vault"
)

// Engine holds every live market this host process serves, keyed by
// symbol, and the Vault collaborator they all debit/credit against.
type Engine struct {
	mu       sync.RWMutex
	registry *market.Registry
	states   map[string]*matchengine.State
	vault    vault.Vault
	log      *zap.SugaredLogger
}

// NewEngine creates an empty engine. log may be nil; every log call is
// guarded so a missing logger never panics (matches the teacher's
// tolerance for nil loggers in unit tests).
func NewEngine(v vault.Vault, log *zap.SugaredLogger) *Engine {
	return &Engine{
		registry: market.NewRegistry(),
		states:   make(map[string]*matchengine.State),
		vault:    v,
		log:      log,
	}
}

func (e *Engine) infow(msg string, kv ...interface{}) {
	if e.log != nil {
		e.log.Infow(msg, kv...)
	}
}

func (e *Engine) warnw(msg string, kv ...interface{}) {
	if e.log != nil {
		e.log.Warnw(msg, kv...)
	}
}

// CreateMarketParams is the create_market argument set (spec §6):
// sizing for the four regions plus the account ids the host has
// already allocated for them.
type CreateMarketParams struct {
	Symbol string
	Config market.Config

	BookPages   uint16
	SettlePages uint16
	TradePages  uint16

	SettleEntryCap uint64
	TradeEntryMax  uint64

	SettleAID, SettleBID           common.Hash
	MktVaultAccount, PrcVaultAccount common.Hash
}

// CreateMarket implements create_market: initializes Market, MarketState,
// Orders, TradeLog, SettleA, SettleB (spec §6).
func (e *Engine) CreateMarket(p CreateMarketParams) error {
	m, err := market.NewMarket(p.Symbol, p.Config)
	if err != nil {
		return fmt.Errorf("engine: create_market: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.registry.Register(m); err != nil {
		return fmt.Errorf("engine: create_market: %w", err)
	}

	st, err := matchengine.NewState(
		m,
		slab.NewAlloc(p.BookPages), slab.NewAlloc(p.SettlePages), slab.NewAlloc(p.SettlePages), slab.NewAlloc(p.TradePages),
		p.SettleAID, p.SettleBID,
		p.SettleEntryCap, p.TradeEntryMax,
		e.vault, p.MktVaultAccount, p.PrcVaultAccount,
	)
	if err != nil {
		return fmt.Errorf("engine: create_market: %w", err)
	}
	e.states[p.Symbol] = st
	e.infow("market_created", "symbol", p.Symbol)
	return nil
}

// RestoreMarketParams reattaches a market whose four regions were
// already populated by a previous process. The regions carry the book,
// settlement and trade state; Config, the settlement and vault ids and
// the ActionCtr/AccruedFees counters are supplied alongside them.
type RestoreMarketParams struct {
	Symbol string
	Config market.Config

	BookAlloc, SettleAAlloc, SettleBAlloc, TradeAlloc *slab.Alloc

	SettleAID, SettleBID             common.Hash
	MktVaultAccount, PrcVaultAccount common.Hash

	ActionCtr   uint64
	AccruedFees uint64
}

// RestoreMarket re-derives Market from Config (which reproduces the
// same AdminSeed, since derivation is pure) and reattaches a
// matchengine.State to regions a prior process already populated,
// instead of creating fresh ones as CreateMarket does.
func (e *Engine) RestoreMarket(p RestoreMarketParams) error {
	m, err := market.NewMarket(p.Symbol, p.Config)
	if err != nil {
		return fmt.Errorf("engine: restore_market: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.registry.Register(m); err != nil {
		return fmt.Errorf("engine: restore_market: %w", err)
	}

	st := matchengine.OpenState(
		m,
		p.BookAlloc, p.SettleAAlloc, p.SettleBAlloc, p.TradeAlloc,
		p.SettleAID, p.SettleBID,
		e.vault, p.MktVaultAccount, p.PrcVaultAccount,
		p.ActionCtr, p.AccruedFees,
	)
	e.states[p.Symbol] = st
	e.infow("market_restored", "symbol", p.Symbol)
	return nil
}

// MarketSnapshot is everything a caller needs to persist one market's
// current regions and metadata (spec §4.1).
type MarketSnapshot struct {
	Symbol string
	Config market.Config

	BookAlloc, SettleAAlloc, SettleBAlloc, TradeAlloc *slab.Alloc

	SettleAID, SettleBID             common.Hash
	MktVaultAccount, PrcVaultAccount common.Hash

	ActionCtr   uint64
	AccruedFees uint64
}

// Snapshot returns symbol's current regions and metadata for the
// caller to persist (storage.RegionStore.SaveRegion/SaveMarketMeta).
func (e *Engine) Snapshot(symbol string) (MarketSnapshot, error) {
	m, err := e.Market(symbol)
	if err != nil {
		return MarketSnapshot{}, err
	}
	st, err := e.state(symbol)
	if err != nil {
		return MarketSnapshot{}, err
	}
	settleAID, settleBID := st.SettleIDs()
	return MarketSnapshot{
		Symbol:          symbol,
		Config:          m.Config,
		BookAlloc:       st.BookAlloc,
		SettleAAlloc:    st.SettleAAlloc,
		SettleBAlloc:    st.SettleBAlloc,
		TradeAlloc:      st.TradeAlloc,
		SettleAID:       settleAID,
		SettleBID:       settleBID,
		MktVaultAccount: st.MktVaultAccount,
		PrcVaultAccount: st.PrcVaultAccount,
		ActionCtr:       st.ActionCtr,
		AccruedFees:     st.AccruedFees,
	}, nil
}

func (e *Engine) state(symbol string) (*matchengine.State, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.states[symbol]
	if !ok {
		return nil, fmt.Errorf("engine: market %s: %w", symbol, aqerr.ErrNotFound)
	}
	return st, nil
}

// Market returns the immutable configuration for symbol.
func (e *Engine) Market(symbol string) (*market.Market, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.Get(symbol)
}

// Markets lists every registered symbol's configuration.
func (e *Engine) Markets() []*market.Market {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.List()
}

// State exposes the raw matchengine.State for read-only book/trade
// snapshots (API/UI layers).
func (e *Engine) State(symbol string) (*matchengine.State, error) {
	return e.state(symbol)
}

func (e *Engine) limit(ctx context.Context, symbol string, p matchengine.LimitParams) (matchengine.TradeResult, error) {
	st, err := e.state(symbol)
	if err != nil {
		return matchengine.TradeResult{}, err
	}
	result, err := st.Limit(ctx, p)
	if err != nil {
		e.warnw("limit_failed", "symbol", symbol, "side", p.Side.String(), "owner", p.Owner, "err", err)
		return result, err
	}
	e.infow("limit_ok", "symbol", symbol, "side", p.Side.String(), "owner", p.Owner,
		"posted", result.Posted, "received", result.TokensReceived, "fee", result.TokensFee)
	return result, nil
}

// LimitBid implements limit_bid (spec §6). p.Side is overwritten.
func (e *Engine) LimitBid(ctx context.Context, symbol string, p matchengine.LimitParams) (matchengine.TradeResult, error) {
	p.Side = orderbook.Bid
	return e.limit(ctx, symbol, p)
}

// LimitAsk implements limit_ask (spec §6). p.Side is overwritten.
func (e *Engine) LimitAsk(ctx context.Context, symbol string, p matchengine.LimitParams) (matchengine.TradeResult, error) {
	p.Side = orderbook.Ask
	return e.limit(ctx, symbol, p)
}

// CancelOrder implements cancel_order (spec §6).
func (e *Engine) CancelOrder(ctx context.Context, symbol string, caller common.Hash, side orderbook.Side, orderID critbit.Key128) (matchengine.WithdrawResult, error) {
	st, err := e.state(symbol)
	if err != nil {
		return matchengine.WithdrawResult{}, err
	}
	result, err := st.Cancel(ctx, caller, side, orderID, false)
	if err != nil {
		e.warnw("cancel_failed", "symbol", symbol, "owner", caller, "err", err)
		return result, err
	}
	e.infow("cancel_ok", "symbol", symbol, "owner", caller)
	return result, nil
}

// Withdraw implements withdraw() (spec §6).
func (e *Engine) Withdraw(ctx context.Context, symbol string, owner common.Hash, extraLogIDs []common.Hash) (matchengine.WithdrawResult, error) {
	st, err := e.state(symbol)
	if err != nil {
		return matchengine.WithdrawResult{}, err
	}
	result, err := st.Withdraw(ctx, owner, extraLogIDs)
	if err != nil {
		e.warnw("withdraw_failed", "symbol", symbol, "owner", owner, "err", err)
		return result, err
	}
	e.infow("withdraw_ok", "symbol", symbol, "owner", owner, "mkt", result.MktTokens, "prc", result.PrcTokens)
	return result, nil
}

// ManagerCancelOrder implements manager_cancel_order (spec §4.7/§6).
func (e *Engine) ManagerCancelOrder(ctx context.Context, symbol string, caller common.Hash, side orderbook.Side, orderID critbit.Key128) (matchengine.WithdrawResult, error) {
	st, err := e.state(symbol)
	if err != nil {
		return matchengine.WithdrawResult{}, err
	}
	return st.ManagerCancelOrder(ctx, caller, side, orderID)
}

// ManagerWithdraw implements manager_withdraw (spec §4.7/§6).
func (e *Engine) ManagerWithdraw(ctx context.Context, symbol string, caller, owner common.Hash, extraLogIDs []common.Hash) (matchengine.WithdrawResult, error) {
	st, err := e.state(symbol)
	if err != nil {
		return matchengine.WithdrawResult{}, err
	}
	return st.ManagerWithdraw(ctx, caller, owner, extraLogIDs)
}

// ManagerVaultWithdraw implements manager_vault_withdraw (spec §4.7/§6).
func (e *Engine) ManagerVaultWithdraw(ctx context.Context, symbol string, caller common.Hash, amount uint64) error {
	st, err := e.state(symbol)
	if err != nil {
		return err
	}
	return st.ManagerVaultWithdraw(ctx, caller, amount)
}

// ManagerTransferSol implements manager_transfer_sol (spec §6): the
// admin sweep of the market's native-gas-token float. AquaDEX has no
// native gas token of its own (the host owns that concern), so this
// moves amount of the host's designated gas-float token the same way
// manager_vault_withdraw moves accrued fees, without touching
// AccruedFees. caller authorization mirrors the other manager ops.
func (e *Engine) ManagerTransferSol(ctx context.Context, symbol string, caller, dst common.Hash, src common.Hash, amount uint64) error {
	m, err := e.Market(symbol)
	if err != nil {
		return err
	}
	if !m.Config.ManagerActions || caller != m.AdminSeed {
		return fmt.Errorf("engine: manager_transfer_sol: %w", aqerr.ErrNotAuthorized)
	}
	if err := e.vault.Move(ctx, src, dst, amount); err != nil {
		return fmt.Errorf("engine: manager_transfer_sol: %w", aqerr.ErrVault)
	}
	e.infow("manager_transfer_sol_ok", "symbol", symbol, "amount", amount)
	return nil
}

// LogStatus implements log_status (spec §6), read-only.
func (e *Engine) LogStatus(symbol string, activeHead bool) (items uint64, prev, next common.Hash, err error) {
	st, err := e.state(symbol)
	if err != nil {
		return 0, common.Hash{}, common.Hash{}, err
	}
	return st.LogStatus(activeHead)
}

// VaultDepositParams is the vault_deposit argument set: an admin
// migration of long-stale settlement entries straight to each owner's
// external vault account (spec §6 "admin migration").
type VaultDepositParams struct {
	Caller      common.Hash
	LogIDs      []common.Hash
	StaleBefore int64 // migrate only entries last touched before this timestamp
}

// VaultDeposit implements vault_deposit (spec §6): walks the named
// settlement logs (typically ones no longer reachable from either
// active head after a rollover chain grew long) and migrates every
// entry untouched since before StaleBefore directly to the owner's
// vault account, mirroring withdraw()'s settlement-to-vault transfer
// but driven by the manager rather than the owner.
func (e *Engine) VaultDeposit(ctx context.Context, symbol string, p VaultDepositParams) (migrated int, err error) {
	m, err := e.Market(symbol)
	if err != nil {
		return 0, err
	}
	if !m.Config.ManagerActions || p.Caller != m.AdminSeed {
		return 0, fmt.Errorf("engine: vault_deposit: %w", aqerr.ErrNotAuthorized)
	}
	st, err := e.state(symbol)
	if err != nil {
		return 0, err
	}

	for _, id := range p.LogIDs {
		log := st.Log(id)
		if log == nil {
			continue
		}
		var stale []settlement.Entry
		if scanErr := log.Scan(func(entry settlement.Entry) bool {
			if entry.TsUpdated < p.StaleBefore {
				stale = append(stale, entry)
			}
			return true
		}); scanErr != nil {
			return migrated, scanErr
		}
		for _, entry := range stale {
			if entry.MktBalance > 0 {
				if err := e.vault.Move(ctx, st.MktVaultAccount, entry.Owner, entry.MktBalance); err != nil {
					return migrated, fmt.Errorf("engine: vault_deposit: %w", aqerr.ErrVault)
				}
			}
			if entry.PrcBalance > 0 {
				if err := e.vault.Move(ctx, st.PrcVaultAccount, entry.Owner, entry.PrcBalance); err != nil {
					return migrated, fmt.Errorf("engine: vault_deposit: %w", aqerr.ErrVault)
				}
			}
			if err := log.Debit(entry.Owner, entry.MktBalance, entry.PrcBalance); err != nil {
				return migrated, err
			}
			migrated++
		}
	}
	e.infow("vault_deposit_ok", "symbol", symbol, "migrated", migrated)
	return migrated, nil
}
