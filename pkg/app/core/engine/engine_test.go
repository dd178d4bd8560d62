package engine

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aquadex/core/pkg/app/core/market"
	"github.com/aquadex/core/pkg/app/core/matchengine"
	"github.com/aquadex/core/pkg/app/core/orderbook"
	"github.com/aquadex/core/pkg/app/core/vault"
)

func newTestEngine(t *testing.T) (*Engine, *vault.MemVault) {
	t.Helper()
	mv := vault.NewMemVault()
	e := NewEngine(mv, nil)
	err := e.CreateMarket(CreateMarketParams{
		Symbol: "ABC-XYZ",
		Config: market.Config{
			MktDecimals:    0,
			PrcDecimals:    0,
			MinQuantity:    1,
			ManagerActions: true,
			ExpireEnable:   true,
		},
		BookPages:        32,
		SettlePages:      32,
		TradePages:       32,
		SettleEntryCap:   16,
		TradeEntryMax:    32,
		SettleAID:        common.HexToHash("0xa1"),
		SettleBID:        common.HexToHash("0xa2"),
		MktVaultAccount:  common.HexToHash("0xf1"),
		PrcVaultAccount:  common.HexToHash("0xf2"),
	})
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	return e, mv
}

func TestCreateMarketRejectsDuplicateSymbol(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.CreateMarket(CreateMarketParams{Symbol: "ABC-XYZ", Config: market.Config{MinQuantity: 1}})
	if err == nil {
		t.Fatalf("expected duplicate symbol to be rejected")
	}
}

func TestLimitBidAskRoundTrip(t *testing.T) {
	e, mv := newTestEngine(t)
	ctx := context.Background()
	maker := common.HexToHash("0x1")
	taker := common.HexToHash("0x2")

	mv.Seed(maker, 10)
	mv.Seed(taker, 1000)

	askResult, err := e.LimitAsk(ctx, "ABC-XYZ", matchengine.LimitParams{
		Owner: maker, Qty: 10, Price: 100, Post: true,
	})
	if err != nil {
		t.Fatalf("post ask: %v", err)
	}
	if !askResult.Posted {
		t.Fatalf("expected ask to post, got %+v", askResult)
	}

	bidResult, err := e.LimitBid(ctx, "ABC-XYZ", matchengine.LimitParams{
		Owner: taker, Qty: 10, Price: 100, Fill: true,
	})
	if err != nil {
		t.Fatalf("limit bid: %v", err)
	}
	if bidResult.TokensReceived != 10 {
		t.Fatalf("taker received = %d, want 10", bidResult.TokensReceived)
	}
}

func TestLimitUnknownMarket(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.LimitBid(ctx, "NOPE", matchengine.LimitParams{Owner: common.HexToHash("0x1"), Qty: 1, Price: 1}); err == nil {
		t.Fatalf("expected unknown market to fail")
	}
}

func TestCancelOrderThroughEngine(t *testing.T) {
	e, mv := newTestEngine(t)
	ctx := context.Background()
	owner := common.HexToHash("0x1")
	mv.Seed(owner, 10)

	result, err := e.LimitAsk(ctx, "ABC-XYZ", matchengine.LimitParams{Owner: owner, Qty: 10, Price: 100, Post: true})
	if err != nil {
		t.Fatalf("post ask: %v", err)
	}
	if _, err := e.CancelOrder(ctx, "ABC-XYZ", owner, orderbook.Ask, result.OrderID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if mv.Balance(owner) != 10 {
		t.Fatalf("owner balance after cancel = %d, want 10", mv.Balance(owner))
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	e, mv := newTestEngine(t)
	ctx := context.Background()
	maker := common.HexToHash("0x1")
	mv.Seed(maker, 10)

	if _, err := e.LimitAsk(ctx, "ABC-XYZ", matchengine.LimitParams{Owner: maker, Qty: 10, Price: 100, Post: true}); err != nil {
		t.Fatalf("post ask: %v", err)
	}

	snap, err := e.Snapshot("ABC-XYZ")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	e2 := NewEngine(mv, nil)
	if err := e2.RestoreMarket(RestoreMarketParams{
		Symbol:          snap.Symbol,
		Config:          snap.Config,
		BookAlloc:       snap.BookAlloc,
		SettleAAlloc:    snap.SettleAAlloc,
		SettleBAlloc:    snap.SettleBAlloc,
		TradeAlloc:      snap.TradeAlloc,
		SettleAID:       snap.SettleAID,
		SettleBID:       snap.SettleBID,
		MktVaultAccount: snap.MktVaultAccount,
		PrcVaultAccount: snap.PrcVaultAccount,
		ActionCtr:       snap.ActionCtr,
		AccruedFees:     snap.AccruedFees,
	}); err != nil {
		t.Fatalf("RestoreMarket: %v", err)
	}

	taker := common.HexToHash("0x2")
	mv.Seed(taker, 1000)
	result, err := e2.LimitBid(ctx, "ABC-XYZ", matchengine.LimitParams{Owner: taker, Qty: 10, Price: 100, Fill: true})
	if err != nil {
		t.Fatalf("limit bid against restored book: %v", err)
	}
	if result.TokensReceived != 10 {
		t.Fatalf("taker received = %d, want 10 (restored ask should still be resting)", result.TokensReceived)
	}
}

func TestManagerTransferSolRequiresAuth(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	err := e.ManagerTransferSol(ctx, "ABC-XYZ", common.HexToHash("0xdead"), common.HexToHash("0x1"), common.HexToHash("0x2"), 1)
	if err == nil {
		t.Fatalf("expected unauthorized caller to fail")
	}
}
