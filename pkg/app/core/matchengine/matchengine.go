// Package matchengine implements MatchEngine and MarketState (spec
// §4.4/§4.7): the per-market aggregate tying Market, Orderbook, the two
// SettlementLog heads, and TradeLog together behind the host-facing
// limit/cancel/withdraw/manager operations.
package matchengine

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aquadex/core/pkg/aqerr"
	"github.com/aquadex/core/pkg/app/core/critbit"
	"github.com/aquadex/core/pkg/app/core/market"
	"github.com/aquadex/core/pkg/app/core/orderbook"
	"github.com/aquadex/core/pkg/app/core/settlement"
	"github.com/aquadex/core/pkg/app/core/slab"
	"github.com/aquadex/core/pkg/app/core/tradelog"
	"github.com/aquadex/core/pkg/app/core/vault"
)

var eventTypeFill = [16]byte{'f', 'i', 'l', 'l'}

// RolloverK is the default "fewer than K free entry slots" threshold
// that triggers rollover-required (spec §4.4 Rollover).
const RolloverK = 8

// TradeResult is the record emitted by a completed limit() call (spec
// §4.4 step 5).
type TradeResult struct {
	TokensSent     uint64
	TokensReceived uint64
	TokensFee      uint64
	Posted         bool
	PostedQuantity uint64
	OrderID        critbit.Key128
}

// WithdrawResult is the record emitted by cancel() and withdraw() (spec
// §4.4 Cancel/Withdraw).
type WithdrawResult struct {
	MktTokens uint64
	PrcTokens uint64
}

// LimitParams is the caller-supplied argument set for limit_bid/limit_ask
// (spec §4.4/§6).
type LimitParams struct {
	Owner    common.Hash
	Side     orderbook.Side
	Qty      uint64
	Price    uint64
	Post     bool
	Fill     bool
	Expires  int64
	Preview  bool
	Rollover bool
	Now      int64

	// RolloverLog/RolloverLogID are the caller's freshly allocated
	// settlement log and its external account id, required whenever
	// Rollover is true.
	RolloverLog   *settlement.Log
	RolloverLogID common.Hash
}

// noopVault discards every Move. Preview runs are backed by it so a
// simulated call never touches real token balances, extending spec
// §4.4's "no mutations are committed" to the external Vault leg as
// well as the byte region.
type noopVault struct{}

func (noopVault) Move(context.Context, common.Hash, common.Hash, uint64) error { return nil }

// State is one market's full mutable aggregate (spec §3 MarketState):
// the book, both settlement-log heads plus every log ever spliced in
// by a rollover, the trade log, and the counters manager ops gate on.
type State struct {
	Market *market.Market

	BookAlloc    *slab.Alloc
	SettleAAlloc *slab.Alloc
	SettleBAlloc *slab.Alloc
	TradeAlloc   *slab.Alloc

	book    *orderbook.Orderbook
	settleA *settlement.Log
	settleB *settlement.Log
	trades  *tradelog.Log

	settleAID common.Hash
	settleBID common.Hash
	logByID   map[common.Hash]*settlement.Log

	Vault           vault.Vault
	MktVaultAccount common.Hash
	PrcVaultAccount common.Hash

	ActionCtr   uint64
	AccruedFees uint64
	RolloverK   uint64
}

// NewState wires a freshly created market's four regions together
// (spec §6 create_market).
func NewState(
	m *market.Market,
	bookAlloc, settleAAlloc, settleBAlloc, tradeAlloc *slab.Alloc,
	settleAID, settleBID common.Hash,
	settleEntryCap, tradeEntryMax uint64,
	v vault.Vault, mktVault, prcVault common.Hash,
) (*State, error) {
	book, err := orderbook.NewOrderbook(bookAlloc)
	if err != nil {
		return nil, fmt.Errorf("matchengine: new orderbook: %w", err)
	}
	settleA, err := settlement.NewLog(settleAAlloc, m.AdminSeed, settleEntryCap)
	if err != nil {
		return nil, fmt.Errorf("matchengine: new settle A: %w", err)
	}
	settleB, err := settlement.NewLog(settleBAlloc, m.AdminSeed, settleEntryCap)
	if err != nil {
		return nil, fmt.Errorf("matchengine: new settle B: %w", err)
	}
	trades, err := tradelog.NewLog(tradeAlloc, tradeEntryMax)
	if err != nil {
		return nil, fmt.Errorf("matchengine: new trade log: %w", err)
	}
	return &State{
		Market:       m,
		BookAlloc:    bookAlloc,
		SettleAAlloc: settleAAlloc,
		SettleBAlloc: settleBAlloc,
		TradeAlloc:   tradeAlloc,
		book:         book,
		settleA:      settleA,
		settleB:      settleB,
		trades:       trades,
		settleAID:    settleAID,
		settleBID:    settleBID,
		logByID:      map[common.Hash]*settlement.Log{settleAID: settleA, settleBID: settleB},
		Vault:        v,
		MktVaultAccount: mktVault,
		PrcVaultAccount: prcVault,
		RolloverK:    RolloverK,
	}, nil
}

// OpenState re-attaches to a market's regions already populated, e.g.
// after restoring from storage.
func OpenState(
	m *market.Market,
	bookAlloc, settleAAlloc, settleBAlloc, tradeAlloc *slab.Alloc,
	settleAID, settleBID common.Hash,
	v vault.Vault, mktVault, prcVault common.Hash,
	actionCtr, accruedFees uint64,
) *State {
	settleA := settlement.OpenLog(settleAAlloc)
	settleB := settlement.OpenLog(settleBAlloc)
	return &State{
		Market:          m,
		BookAlloc:       bookAlloc,
		SettleAAlloc:    settleAAlloc,
		SettleBAlloc:    settleBAlloc,
		TradeAlloc:      tradeAlloc,
		book:            orderbook.OpenOrderbook(bookAlloc),
		settleA:         settleA,
		settleB:         settleB,
		trades:          tradelog.OpenLog(tradeAlloc),
		settleAID:       settleAID,
		settleBID:       settleBID,
		logByID:         map[common.Hash]*settlement.Log{settleAID: settleA, settleBID: settleB},
		Vault:           v,
		MktVaultAccount: mktVault,
		PrcVaultAccount: prcVault,
		ActionCtr:       actionCtr,
		AccruedFees:     accruedFees,
		RolloverK:       RolloverK,
	}
}

// activeSettle picks the settlement head with the lower item_count, A
// on a tie (spec I5).
func (s *State) activeSettle() (active, other *settlement.Log, activeIsA bool, err error) {
	countA, err := s.settleA.ItemCount()
	if err != nil {
		return nil, nil, false, err
	}
	countB, err := s.settleB.ItemCount()
	if err != nil {
		return nil, nil, false, err
	}
	if countA <= countB {
		return s.settleA, s.settleB, true, nil
	}
	return s.settleB, s.settleA, false, nil
}

func (s *State) nextAction() uint64 {
	s.ActionCtr++
	return s.ActionCtr
}

func orderIDBytes(id critbit.Key128) [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], id.Hi)
	binary.BigEndian.PutUint64(b[8:16], id.Lo)
	return b
}

// clone deep-copies every region and rewires the live structures atop
// the copies, for a preview run that must not touch s's persistent
// state (spec §4.4 preview mode).
func (s *State) clone() *State {
	c := *s
	c.BookAlloc = s.BookAlloc.Clone()
	c.SettleAAlloc = s.SettleAAlloc.Clone()
	c.SettleBAlloc = s.SettleBAlloc.Clone()
	c.TradeAlloc = s.TradeAlloc.Clone()
	c.book = orderbook.OpenOrderbook(c.BookAlloc)
	c.settleA = settlement.OpenLog(c.SettleAAlloc)
	c.settleB = settlement.OpenLog(c.SettleBAlloc)
	c.trades = tradelog.OpenLog(c.TradeAlloc)
	c.logByID = map[common.Hash]*settlement.Log{c.settleAID: c.settleA, c.settleBID: c.settleB}
	c.Vault = noopVault{}
	return &c
}

// Limit implements limit_bid/limit_ask (spec §4.4).
func (s *State) Limit(ctx context.Context, p LimitParams) (TradeResult, error) {
	if p.Preview {
		return s.clone().limit(ctx, p)
	}
	return s.limit(ctx, p)
}

func (s *State) limit(ctx context.Context, p LimitParams) (TradeResult, error) {
	var result TradeResult

	if !s.Market.Active() {
		return result, fmt.Errorf("matchengine: limit: %w", aqerr.ErrMarketInactive)
	}
	if p.Qty == 0 {
		return result, fmt.Errorf("matchengine: limit: %w", aqerr.ErrBadQty)
	}
	if p.Post && p.Qty < s.Market.Config.MinQuantity {
		return result, fmt.Errorf("matchengine: limit: %w", aqerr.ErrBelowMin)
	}
	if err := s.Market.ValidateTick(p.Price); err != nil {
		return result, fmt.Errorf("matchengine: limit: %w", err)
	}
	if err := s.Market.ValidateExpiry(p.Expires, p.Now); err != nil {
		return result, fmt.Errorf("matchengine: limit: %w", err)
	}

	activeLog, _, activeIsA, err := s.activeSettle()
	if err != nil {
		return result, err
	}
	needsRollover, err := activeLog.NeedsRollover(s.RolloverK)
	if err != nil {
		return result, err
	}
	if p.Rollover && !needsRollover {
		return result, fmt.Errorf("matchengine: limit: %w", aqerr.ErrRolloverNotNeeded)
	}
	if needsRollover && !p.Rollover {
		return result, fmt.Errorf("matchengine: limit: %w", aqerr.ErrRolloverRequired)
	}
	if p.Rollover && needsRollover {
		if err := s.performRollover(activeIsA, p.RolloverLog, p.RolloverLogID); err != nil {
			return result, err
		}
		activeLog, _, _, err = s.activeSettle()
		if err != nil {
			return result, err
		}
	}

	side := p.Side
	var debited uint64
	if side == orderbook.Bid {
		debited, err = s.Market.Notional(p.Qty, p.Price)
		if err != nil {
			return result, err
		}
		if err := s.Vault.Move(ctx, p.Owner, s.PrcVaultAccount, debited); err != nil {
			return result, fmt.Errorf("matchengine: limit: debit: %w", aqerr.ErrVault)
		}
	} else {
		debited = p.Qty
		if err := s.Vault.Move(ctx, p.Owner, s.MktVaultAccount, debited); err != nil {
			return result, fmt.Errorf("matchengine: limit: debit: %w", aqerr.ErrVault)
		}
	}

	oppSide := orderbook.Ask
	if side == orderbook.Ask {
		oppSide = orderbook.Bid
	}
	opposite := s.book.Opposite(side)

	takerRemaining := p.Qty
	var spent uint64 // pricing tokens (bid) or market tokens (ask) consumed by fills
	var received uint64
	var feePaid uint64

	for takerRemaining > 0 {
		best, ok, err := opposite.Best()
		if err != nil {
			return result, err
		}
		if !ok {
			break
		}
		if side == orderbook.Bid && best.Price > p.Price {
			break
		}
		if side == orderbook.Ask && best.Price < p.Price {
			break
		}

		if best.Expiry != 0 && p.Now >= best.Expiry {
			if _, err := opposite.Remove(best.OrderID); err != nil {
				return result, err
			}
			if err := s.refundEvicted(activeLog, oppSide, best, p.Now); err != nil {
				return result, err
			}
			continue
		}

		fillQty := takerRemaining
		if best.QtyRemaining < fillQty {
			fillQty = best.QtyRemaining
		}
		fillPrice := best.Price
		notional, err := s.Market.Notional(fillQty, fillPrice)
		if err != nil {
			return result, err
		}
		takerFee, err := market.RateOfCeil(notional, s.Market.Config.TakerFee)
		if err != nil {
			return result, err
		}
		makerRebate, err := market.RateOf(notional, s.Market.Config.MakerRebate)
		if err != nil {
			return result, err
		}
		if makerRebate > takerFee {
			return result, fmt.Errorf("matchengine: limit: %w", aqerr.ErrInvariant)
		}
		s.AccruedFees += takerFee - makerRebate

		makerFullyFilled := fillQty == best.QtyRemaining

		if side == orderbook.Bid {
			// maker is the resting ask: it wants pricing tokens; the
			// taker (bid) receives market tokens directly.
			if err := activeLog.Credit(common.Hash(best.Owner), 0, notional-takerFee+makerRebate, p.Now); err != nil {
				return result, err
			}
			if err := s.Vault.Move(ctx, s.MktVaultAccount, p.Owner, fillQty); err != nil {
				return result, fmt.Errorf("matchengine: limit: credit taker: %w", aqerr.ErrVault)
			}
			spent += notional
			received += fillQty
		} else {
			// maker is the resting bid: it wants market tokens; the
			// taker (ask) receives pricing tokens directly.
			if err := activeLog.Credit(common.Hash(best.Owner), fillQty, 0, p.Now); err != nil {
				return result, err
			}
			payout := notional - takerFee + makerRebate
			if err := s.Vault.Move(ctx, s.PrcVaultAccount, p.Owner, payout); err != nil {
				return result, fmt.Errorf("matchengine: limit: credit taker: %w", aqerr.ErrVault)
			}
			spent += fillQty
			received += payout
		}
		feePaid += takerFee

		if makerFullyFilled {
			if _, err := opposite.Remove(best.OrderID); err != nil {
				return result, err
			}
		} else if err := opposite.SetQtyRemaining(best.Slot, best.QtyRemaining-fillQty); err != nil {
			return result, err
		}

		actionID := s.nextAction()
		tradeID, err := s.trades.NextTradeID()
		if err != nil {
			return result, err
		}
		record := tradelog.Record{
			EventType:    eventTypeFill,
			ActionID:     actionID,
			TradeID:      tradeID,
			MakerOrderID: orderIDBytes(best.OrderID),
			MakerFilled:  makerFullyFilled,
			Maker:        best.Owner,
			Taker:        [32]byte(p.Owner),
			TakerSide:    uint8(side),
			Amount:       fillQty,
			Price:        fillPrice,
			Ts:           p.Now,
		}
		if err := s.trades.Append(record); err != nil {
			return result, err
		}

		takerRemaining -= fillQty
	}

	var posted bool
	var orderID critbit.Key128
	var finalEscrow uint64
	switch {
	case takerRemaining > 0 && p.Post && takerRemaining >= s.Market.Config.MinQuantity:
		seq := s.nextAction()
		var postErr error
		orderID, _, postErr = s.book.Side(side).Post(p.Price, seq, [32]byte(p.Owner), takerRemaining, p.Expires)
		if postErr != nil {
			return result, postErr
		}
		posted = true
		if side == orderbook.Bid {
			finalEscrow, err = s.Market.Notional(takerRemaining, p.Price)
			if err != nil {
				return result, err
			}
		} else {
			finalEscrow = takerRemaining
		}
	case takerRemaining > 0 && p.Fill:
		return result, fmt.Errorf("matchengine: limit: %w", aqerr.ErrNotFilled)
	}

	var refund uint64
	if debited > spent+finalEscrow {
		refund = debited - spent - finalEscrow
	}
	if refund > 0 {
		if side == orderbook.Bid {
			if err := s.Vault.Move(ctx, s.PrcVaultAccount, p.Owner, refund); err != nil {
				return result, fmt.Errorf("matchengine: limit: refund: %w", aqerr.ErrVault)
			}
		} else if err := s.Vault.Move(ctx, s.MktVaultAccount, p.Owner, refund); err != nil {
			return result, fmt.Errorf("matchengine: limit: refund: %w", aqerr.ErrVault)
		}
	}

	result.TokensSent = debited - refund
	result.TokensReceived = received
	result.TokensFee = feePaid
	result.Posted = posted
	if posted {
		result.PostedQuantity = takerRemaining
		result.OrderID = orderID
	}
	return result, nil
}

// refundEvicted returns an expired maker's pre-escrowed token to their
// settlement log, not via Vault (spec §4.4 step 3: "refund maker to
// settlement ... not yet consumed").
func (s *State) refundEvicted(activeLog *settlement.Log, makerSide orderbook.Side, o orderbook.RestingOrder, now int64) error {
	if makerSide == orderbook.Bid {
		amount, err := s.Market.Notional(o.QtyRemaining, o.Price)
		if err != nil {
			return err
		}
		return activeLog.Credit(common.Hash(o.Owner), 0, amount, now)
	}
	return activeLog.Credit(common.Hash(o.Owner), o.QtyRemaining, 0, now)
}

// performRollover splices newLog into the chain immediately after the
// current active head and promotes it to active, reassigning whichever
// of settleA/settleB was active to point at it (spec §4.4 Rollover,
// scenario 4: "MarketState.settleA = SettleC; old A linked as next").
func (s *State) performRollover(activeIsA bool, newLog *settlement.Log, newLogID common.Hash) error {
	if newLog == nil {
		return fmt.Errorf("matchengine: rollover: missing settlement log account: %w", aqerr.ErrRolloverRequired)
	}
	var active *settlement.Log
	var activeID common.Hash
	if activeIsA {
		active, activeID = s.settleA, s.settleAID
	} else {
		active, activeID = s.settleB, s.settleBID
	}
	oldPrev, oldNext, err := active.Neighbors()
	if err != nil {
		return err
	}
	if err := newLog.SetNeighbors(activeID, oldNext); err != nil {
		return err
	}
	if err := active.SetNeighbors(oldPrev, newLogID); err != nil {
		return err
	}
	if oldNext != (common.Hash{}) {
		if oldNextLog, ok := s.logByID[oldNext]; ok {
			_, oldNextNext, err := oldNextLog.Neighbors()
			if err != nil {
				return err
			}
			if err := oldNextLog.SetNeighbors(newLogID, oldNextNext); err != nil {
				return err
			}
		}
	}
	s.logByID[newLogID] = newLog
	if activeIsA {
		s.settleA, s.settleAID = newLog, newLogID
	} else {
		s.settleB, s.settleBID = newLog, newLogID
	}
	return nil
}

// Cancel implements cancel_order (spec §4.4 Cancel). isManager must be
// true only when the caller holds the manager role and market config
// allows manager cancellation.
func (s *State) Cancel(ctx context.Context, caller common.Hash, side orderbook.Side, orderID critbit.Key128, isManager bool) (WithdrawResult, error) {
	var result WithdrawResult
	bookSide := s.book.Side(side)
	order, ok, err := bookSide.Get(orderID)
	if err != nil {
		return result, err
	}
	if !ok {
		return result, fmt.Errorf("matchengine: cancel: %w", aqerr.ErrNotFound)
	}
	if common.Hash(order.Owner) != caller && !(isManager && s.Market.Config.ManagerActions) {
		return result, fmt.Errorf("matchengine: cancel: %w", aqerr.ErrNotOwner)
	}
	if _, err := bookSide.Remove(orderID); err != nil {
		return result, err
	}

	if side == orderbook.Bid {
		amount, err := s.Market.Notional(order.QtyRemaining, order.Price)
		if err != nil {
			return result, err
		}
		if err := s.Vault.Move(ctx, s.PrcVaultAccount, common.Hash(order.Owner), amount); err != nil {
			return result, fmt.Errorf("matchengine: cancel: refund: %w", aqerr.ErrVault)
		}
		result.PrcTokens = amount
	} else {
		if err := s.Vault.Move(ctx, s.MktVaultAccount, common.Hash(order.Owner), order.QtyRemaining); err != nil {
			return result, fmt.Errorf("matchengine: cancel: refund: %w", aqerr.ErrVault)
		}
		result.MktTokens = order.QtyRemaining
	}
	return result, nil
}

// Withdraw implements withdraw() (spec §4.4 Withdraw): drains owner's
// entry from the active head and from every additional log id the
// caller names, unlinking any non-active log that becomes empty.
func (s *State) Withdraw(ctx context.Context, owner common.Hash, extraLogIDs []common.Hash) (WithdrawResult, error) {
	var result WithdrawResult

	_, _, activeIsA, err := s.activeSettle()
	if err != nil {
		return result, err
	}
	activeID := s.settleAID
	if !activeIsA {
		activeID = s.settleBID
	}

	ids := append([]common.Hash{activeID}, extraLogIDs...)
	seen := make(map[common.Hash]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		log, ok := s.logByID[id]
		if !ok {
			continue
		}
		entry, found, err := log.Get(owner)
		if err != nil {
			return result, err
		}
		if !found || (entry.MktBalance == 0 && entry.PrcBalance == 0) {
			continue
		}
		if entry.MktBalance > 0 {
			if err := s.Vault.Move(ctx, s.MktVaultAccount, owner, entry.MktBalance); err != nil {
				return result, fmt.Errorf("matchengine: withdraw: %w", aqerr.ErrVault)
			}
		}
		if entry.PrcBalance > 0 {
			if err := s.Vault.Move(ctx, s.PrcVaultAccount, owner, entry.PrcBalance); err != nil {
				return result, fmt.Errorf("matchengine: withdraw: %w", aqerr.ErrVault)
			}
		}
		if err := log.Debit(owner, entry.MktBalance, entry.PrcBalance); err != nil {
			return result, err
		}
		result.MktTokens += entry.MktBalance
		result.PrcTokens += entry.PrcBalance

		if id == activeID {
			continue
		}
		count, err := log.ItemCount()
		if err != nil {
			return result, err
		}
		if count != 0 {
			continue
		}
		prev, next, err := log.Unlink()
		if err != nil {
			return result, err
		}
		if prevLog, ok := s.logByID[prev]; ok {
			pPrev, _, err := prevLog.Neighbors()
			if err != nil {
				return result, err
			}
			if err := prevLog.SetNeighbors(pPrev, next); err != nil {
				return result, err
			}
		}
		if nextLog, ok := s.logByID[next]; ok {
			_, nNext, err := nextLog.Neighbors()
			if err != nil {
				return result, err
			}
			if err := nextLog.SetNeighbors(prev, nNext); err != nil {
				return result, err
			}
		}
		delete(s.logByID, id)
	}
	return result, nil
}

// ManagerCancelOrder implements manager_cancel_order (spec §4.7).
func (s *State) ManagerCancelOrder(ctx context.Context, caller common.Hash, side orderbook.Side, orderID critbit.Key128) (WithdrawResult, error) {
	if !s.Market.Config.ManagerActions || caller != s.Market.AdminSeed {
		return WithdrawResult{}, fmt.Errorf("matchengine: manager_cancel_order: %w", aqerr.ErrNotAuthorized)
	}
	return s.Cancel(ctx, caller, side, orderID, true)
}

// ManagerWithdraw implements manager_withdraw (spec §4.7): forces
// owner's settlement withdrawal regardless of who calls.
func (s *State) ManagerWithdraw(ctx context.Context, caller, owner common.Hash, extraLogIDs []common.Hash) (WithdrawResult, error) {
	if !s.Market.Config.ManagerActions || caller != s.Market.AdminSeed {
		return WithdrawResult{}, fmt.Errorf("matchengine: manager_withdraw: %w", aqerr.ErrNotAuthorized)
	}
	return s.Withdraw(ctx, owner, extraLogIDs)
}

// ManagerVaultWithdraw implements manager_vault_withdraw (spec §4.7):
// withdraws up to accrued_fees in pricing tokens to the manager.
func (s *State) ManagerVaultWithdraw(ctx context.Context, caller common.Hash, amount uint64) error {
	if !s.Market.Config.ManagerActions || caller != s.Market.AdminSeed {
		return fmt.Errorf("matchengine: manager_vault_withdraw: %w", aqerr.ErrNotAuthorized)
	}
	if amount > s.AccruedFees {
		return fmt.Errorf("matchengine: manager_vault_withdraw: %d exceeds accrued %d: %w", amount, s.AccruedFees, aqerr.ErrUnderflow)
	}
	if err := s.Vault.Move(ctx, s.PrcVaultAccount, caller, amount); err != nil {
		return fmt.Errorf("matchengine: manager_vault_withdraw: %w", aqerr.ErrVault)
	}
	s.AccruedFees -= amount
	return nil
}

// LogStatus exposes the read-only log_status operation (spec §6) for
// either settlement head.
func (s *State) LogStatus(activeHead bool) (items uint64, prev, next common.Hash, err error) {
	if activeHead {
		active, _, _, err := s.activeSettle()
		if err != nil {
			return 0, common.Hash{}, common.Hash{}, err
		}
		return active.LogStatus()
	}
	_, other, _, err := s.activeSettle()
	if err != nil {
		return 0, common.Hash{}, common.Hash{}, err
	}
	return other.LogStatus()
}

// Log returns the settlement log registered under id (either active
// head or any log still reachable via the rollover chain), or nil if
// id names none of them. Used by the vault_deposit migration op.
func (s *State) Log(id common.Hash) *settlement.Log { return s.logByID[id] }

// Book exposes the orderbook for read-only snapshots (API/UI layers).
func (s *State) Book() *orderbook.Orderbook { return s.book }

// Trades exposes the trade log for read-only scans (API/UI layers).
func (s *State) Trades() *tradelog.Log { return s.trades }

// SettleIDs returns the ids currently registered to the A and B
// settlement heads. Used when snapshotting a market for persistence.
func (s *State) SettleIDs() (a, b common.Hash) { return s.settleAID, s.settleBID }
