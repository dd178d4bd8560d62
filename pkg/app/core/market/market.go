// Package market defines the immutable per-market configuration created
// once by create_market and never mutated afterward (spec §3). Mutable
// per-market counters live in the matchengine package's MarketState, not
// here.
package market

import (
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/aquadex/core/pkg/aqerr"
)

// MintType distinguishes the common-case token leg ("AST-0") from the
// sub-account-gated AST-1 variant flagged as under-specified in the
// design notes. AquaDEX's match and settlement paths only exercise
// MintStandard; MintAST1 is accepted and persisted on Config but no
// vault transfer path special-cases it yet.
type MintType uint8

const (
	MintStandard MintType = iota
	MintAST1
)

// Config is the caller-supplied envelope recognized by create_market.
// Every field the host omits defaults to zero/false (spec §6).
type Config struct {
	MarketTokenID  common.Hash
	PricingTokenID common.Hash

	AgentNonce    uint8
	MktVaultNonce uint8
	PrcVaultNonce uint8

	MktDecimals uint8
	PrcDecimals uint8
	MktMintType MintType
	PrcMintType MintType

	ManagerActions bool
	ExpireEnable   bool
	ExpireMin      int64 // minimum expiry delta, seconds

	MinQuantity  uint64
	TickDecimals uint8 // power-of-ten exponent applied to tick granularity

	TakerFee    uint64 // parts-per-10,000,000
	MakerRebate uint64 // parts-per-10,000,000

	// Zero-valued in every market observed in the source; semantics of
	// who pays and when credited are unconfirmed (spec §9 open question).
	LogFee       uint64
	LogRebate    uint64
	LogReimburse uint64

	MktVaultUUID common.Hash
	PrcVaultUUID common.Hash
}

// Market is one trading pair's fixed configuration plus its admin PDA
// seed, derived once at creation and never recomputed.
type Market struct {
	Symbol    string
	Config    Config
	AdminSeed common.Hash

	active bool
}

// NewMarket validates cfg and derives the market's admin seed.
func NewMarket(symbol string, cfg Config) (*Market, error) {
	if symbol == "" {
		return nil, fmt.Errorf("market: symbol cannot be empty")
	}
	if cfg.MktDecimals > 18 || cfg.PrcDecimals > 18 {
		return nil, fmt.Errorf("market: decimals out of range")
	}
	if cfg.TickDecimals > 18 {
		return nil, fmt.Errorf("market: tick_decimals out of range")
	}
	if cfg.MinQuantity == 0 {
		return nil, fmt.Errorf("market: min_quantity must be positive")
	}
	if cfg.TakerFee > 10_000_000 || cfg.MakerRebate > 10_000_000 {
		return nil, fmt.Errorf("market: fee rate exceeds the 10,000,000 denominator")
	}
	if cfg.MakerRebate > cfg.TakerFee {
		return nil, fmt.Errorf("market: maker rebate cannot exceed taker fee")
	}
	if cfg.ExpireEnable && cfg.ExpireMin < 0 {
		return nil, fmt.Errorf("market: expire_min cannot be negative")
	}

	m := &Market{
		Symbol: symbol,
		Config: cfg,
		active: true,
	}
	m.AdminSeed = deriveAdminSeed(cfg)
	return m, nil
}

// deriveAdminSeed uses Keccak256 to fold the market's identity (token
// ids, vault uuids and nonces) into one 32-byte PDA seed.
func deriveAdminSeed(cfg Config) common.Hash {
	buf := make([]byte, 0, 32*4+3)
	buf = append(buf, cfg.MarketTokenID[:]...)
	buf = append(buf, cfg.PricingTokenID[:]...)
	buf = append(buf, cfg.MktVaultUUID[:]...)
	buf = append(buf, cfg.PrcVaultUUID[:]...)
	buf = append(buf, cfg.AgentNonce, cfg.MktVaultNonce, cfg.PrcVaultNonce)
	return crypto.Keccak256Hash(buf)
}

// Active reports whether the market currently accepts new orders.
func (m *Market) Active() bool { return m.active }

// SetActive is the host's pause/resume admin lever.
func (m *Market) SetActive(active bool) { m.active = active }

// TickMask is 10^TickDecimals; a price is tick-aligned iff price %
// TickMask == 0.
func (m *Market) TickMask() uint64 {
	mask := uint64(1)
	for i := uint8(0); i < m.Config.TickDecimals; i++ {
		mask *= 10
	}
	return mask
}

// ValidateTick checks a price against the market's tick granularity
// (spec §4.4 step 1).
func (m *Market) ValidateTick(price uint64) error {
	if price == 0 {
		return fmt.Errorf("market: price cannot be zero: %w", aqerr.ErrBadPrice)
	}
	if mask := m.TickMask(); mask > 1 && price%mask != 0 {
		return fmt.Errorf("market: price %d not aligned to tick granularity %d: %w", price, mask, aqerr.ErrBadTick)
	}
	return nil
}

// ValidateExpiry checks a requested expiry against the market's
// minimum live duration. expires == 0 means "never expires" and is
// always valid.
func (m *Market) ValidateExpiry(expires, now int64) error {
	if expires == 0 {
		return nil
	}
	if !m.Config.ExpireEnable {
		return fmt.Errorf("market: expiry not enabled for this market: %w", aqerr.ErrBadQty)
	}
	if expires-now < m.Config.ExpireMin {
		return fmt.Errorf("market: expiry %d below minimum delta %d: %w", expires, m.Config.ExpireMin, aqerr.ErrExpired)
	}
	return nil
}

// mktScale is 10^MktDecimals, the denominator converting a qty*price
// product into pricing-token notional.
func (m *Market) mktScale() uint64 {
	scale := uint64(1)
	for i := uint8(0); i < m.Config.MktDecimals; i++ {
		scale *= 10
	}
	return scale
}

// Notional computes qty*price/10^mkt_decimals using a 128-bit widening
// multiply so large qty/price pairs don't silently wrap (spec §4.4 step
// 2's "saturating check").
func (m *Market) Notional(qty, price uint64) (uint64, error) {
	hi, lo := bits.Mul64(qty, price)
	scale := m.mktScale()
	if hi >= scale {
		return 0, fmt.Errorf("market: notional overflow for qty=%d price=%d: %w", qty, price, aqerr.ErrOverflow)
	}
	q, _ := bits.Div64(hi, lo, scale)
	return q, nil
}

// RateOf computes amount*rateNumerator/10_000_000, floor — the maker
// rebate side of spec §4.4 step 3 (spec.md's rebate rounds toward the
// maker, i.e. floor).
func RateOf(amount, rateNumerator uint64) (uint64, error) {
	hi, lo := bits.Mul64(amount, rateNumerator)
	const denom = 10_000_000
	if hi >= denom {
		return 0, fmt.Errorf("market: rate computation overflow: %w", aqerr.ErrOverflow)
	}
	q, _ := bits.Div64(hi, lo, denom)
	return q, nil
}

// RateOfCeil computes amount*rateNumerator/10_000_000, rounded up — the
// taker fee side of spec §4.4 step 3 (spec.md's fee rounds toward the
// protocol, i.e. ceiling, so the taker never pays a hair less than the
// configured rate).
func RateOfCeil(amount, rateNumerator uint64) (uint64, error) {
	hi, lo := bits.Mul64(amount, rateNumerator)
	const denom = 10_000_000
	if hi >= denom {
		return 0, fmt.Errorf("market: rate computation overflow: %w", aqerr.ErrOverflow)
	}
	q, r := bits.Div64(hi, lo, denom)
	if r != 0 {
		q++
	}
	return q, nil
}
