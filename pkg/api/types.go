package api

import "fmt"

// API response types for REST endpoints and WebSocket messages.
// Orders/balances are all uint64 raw token-unit amounts (spec §3): the
// REST/WS layer never computes mark price or unrealized PnL, since
// AquaDEX core has no concept of either.

// ==============================
// REST Response Types
// ==============================

// MarketInfo is a market's immutable configuration (spec §3 Config).
type MarketInfo struct {
	Symbol         string `json:"symbol"`
	MktDecimals    uint8  `json:"mktDecimals"`
	PrcDecimals    uint8  `json:"prcDecimals"`
	MinQuantity    uint64 `json:"minQuantity"`
	TakerFee       uint64 `json:"takerFee"`    // parts-per-10,000,000
	MakerRebate    uint64 `json:"makerRebate"` // parts-per-10,000,000
	ExpireEnable   bool   `json:"expireEnable"`
	ManagerActions bool   `json:"managerActions"`
}

// PriceLevel is one resting order surfaced in a book snapshot.
type PriceLevel struct {
	OrderID string `json:"orderId"`
	Owner   string `json:"owner"`
	Price   uint64 `json:"price"`
	Qty     uint64 `json:"qty"`
	Expiry  int64  `json:"expiry"`
}

// OrderbookSnapshot is the current state of both book sides.
type OrderbookSnapshot struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"` // best (highest price) first
	Asks      []PriceLevel `json:"asks"` // best (lowest price) first
	Timestamp int64        `json:"timestamp"`
}

// TradeInfo is one resident TradeLog record (spec §4.6).
type TradeInfo struct {
	TradeID   uint64 `json:"tradeId"`
	Maker     string `json:"maker"`
	Taker     string `json:"taker"`
	TakerSide string `json:"takerSide"` // "bid" or "ask"
	Price     uint64 `json:"price"`
	Amount    uint64 `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// LogStatusInfo answers log_status (spec §6): a settlement head's
// resident item count and its rollover-chain neighbors.
type LogStatusInfo struct {
	Symbol string `json:"symbol"`
	Head   string `json:"head"` // "a" or "b"
	Items  uint64 `json:"items"`
	Prev   string `json:"prev"`
	Next   string `json:"next"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by the client to subscribe to channels,
// e.g. ["orderbook:ABC-XYZ", "trades:ABC-XYZ"].
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// OrderbookUpdate is broadcast after every limit/cancel that touches a
// market's book.
type OrderbookUpdate struct {
	Type      string       `json:"type"` // "orderbook"
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// TradeUpdate is broadcast whenever a limit call produces a fill.
type TradeUpdate struct {
	Type      string `json:"type"` // "trade"
	Symbol    string `json:"symbol"`
	Price     uint64 `json:"price"`
	Amount    uint64 `json:"amount"`
	TakerSide string `json:"takerSide"`
	Timestamp int64  `json:"timestamp"`
}

// ==============================
// REST Request Types
// ==============================

// LimitOrderRequest is the payload for POST /api/v1/markets/{symbol}/orders.
type LimitOrderRequest struct {
	Owner   string `json:"owner"` // 32-byte hash hex
	Side    string `json:"side"`  // "bid" or "ask"
	Qty     uint64 `json:"qty"`
	Price   uint64 `json:"price"`
	Post    bool   `json:"post"`
	Fill    bool   `json:"fill"`
	Expires int64  `json:"expires"`
	Preview bool   `json:"preview"`
}

// LimitOrderResponse mirrors matchengine.TradeResult.
type LimitOrderResponse struct {
	TokensSent     uint64 `json:"tokensSent"`
	TokensReceived uint64 `json:"tokensReceived"`
	TokensFee      uint64 `json:"tokensFee"`
	Posted         bool   `json:"posted"`
	PostedQuantity uint64 `json:"postedQuantity"`
	OrderID        string `json:"orderId"`
}

// CancelOrderRequest is the payload for POST /api/v1/markets/{symbol}/orders/cancel.
type CancelOrderRequest struct {
	Owner   string `json:"owner"`
	Side    string `json:"side"`
	OrderID string `json:"orderId"` // "hi:lo" hex, see keyString/parseKeyString
}

// WithdrawRequest is the payload for POST /api/v1/markets/{symbol}/withdraw.
type WithdrawRequest struct {
	Owner       string   `json:"owner"`
	ExtraLogIDs []string `json:"extraLogIds,omitempty"`
}

// WithdrawResponse mirrors matchengine.WithdrawResult.
type WithdrawResponse struct {
	MktTokens uint64 `json:"mktTokens"`
	PrcTokens uint64 `json:"prcTokens"`
}

// ManagerActionRequest is the shared payload for the admin-gated
// manager_* endpoints (spec §4.7/§6). Unused fields are ignored.
type ManagerActionRequest struct {
	Caller      string   `json:"caller"`
	Owner       string   `json:"owner,omitempty"`
	Side        string   `json:"side,omitempty"`
	OrderID     string   `json:"orderId,omitempty"`
	Amount      uint64   `json:"amount,omitempty"`
	Dst         string   `json:"dst,omitempty"`
	Src         string   `json:"src,omitempty"`
	LogIDs      []string `json:"logIds,omitempty"`
	StaleBefore int64    `json:"staleBefore,omitempty"`
	ExtraLogIDs []string `json:"extraLogIds,omitempty"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// keyString renders a critbit.Key128-shaped order id as "hi:lo" hex,
// matching how LimitOrderResponse.OrderID/CancelOrderRequest.OrderID
// round-trip through JSON.
func keyString(hi, lo uint64) string { return fmt.Sprintf("%x:%x", hi, lo) }

func parseKeyString(s string) (hi, lo uint64, err error) {
	_, err = fmt.Sscanf(s, "%x:%x", &hi, &lo)
	return hi, lo, err
}
