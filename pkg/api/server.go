package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/aquadex/core/pkg/app/core/critbit"
	"github.com/aquadex/core/pkg/app/core/engine"
	"github.com/aquadex/core/pkg/app/core/market"
	"github.com/aquadex/core/pkg/app/core/matchengine"
	"github.com/aquadex/core/pkg/app/core/orderbook"
	"github.com/aquadex/core/pkg/app/core/tradelog"
)

// bookSnapshotDepth bounds how many resting orders per side a single
// /orderbook request returns.
const bookSnapshotDepth = 100

// Server handles REST API and WebSocket connections over an Engine
// (spec §6's external interface). Grounded on the teacher's
// mux+rs/cors+gorilla/websocket Server, generalized from perp
// account/position endpoints to market/orderbook/settlement endpoints.
type Server struct {
	eng    *engine.Engine
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

// NewServer creates a new API server over eng. log receives both the
// REST access/error lines and the WebSocket hub's connection lifecycle
// events, so an operator can correlate a client's REST calls and its
// live-feed subscription from one log stream.
func NewServer(eng *engine.Engine, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		eng:    eng,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets/{symbol}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{symbol}/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/markets/{symbol}/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/markets/{symbol}/log_status", s.handleLogStatus).Methods("GET")

	api.HandleFunc("/markets/{symbol}/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/markets/{symbol}/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/markets/{symbol}/withdraw", s.handleWithdraw).Methods("POST")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/markets/{symbol}/manager_cancel_order", s.handleManagerCancelOrder).Methods("POST")
	admin.HandleFunc("/markets/{symbol}/manager_withdraw", s.handleManagerWithdraw).Methods("POST")
	admin.HandleFunc("/markets/{symbol}/manager_vault_withdraw", s.handleManagerVaultWithdraw).Methods("POST")
	admin.HandleFunc("/markets/{symbol}/manager_transfer_sol", s.handleManagerTransferSol).Methods("POST")
	admin.HandleFunc("/markets/{symbol}/vault_deposit", s.handleVaultDeposit).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server on addr, blocking until it exits.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	handler := c.Handler(s.router)

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, handler)
}

// ==============================
// REST Handlers: markets / book / trades
// ==============================

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.eng.Markets()
	response := make([]MarketInfo, len(markets))
	for i, m := range markets {
		response[i] = marketInfo(m.Symbol, m.Config)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	m, err := s.eng.Market(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}
	respondJSON(w, marketInfo(m.Symbol, m.Config))
}

func marketInfo(symbol string, cfg market.Config) MarketInfo {
	return MarketInfo{
		Symbol:         symbol,
		MktDecimals:    cfg.MktDecimals,
		PrcDecimals:    cfg.PrcDecimals,
		MinQuantity:    cfg.MinQuantity,
		TakerFee:       cfg.TakerFee,
		MakerRebate:    cfg.MakerRebate,
		ExpireEnable:   cfg.ExpireEnable,
		ManagerActions: cfg.ManagerActions,
	}
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	st, err := s.eng.State(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}

	bidLevels, err := st.Book().Side(orderbook.Bid).Levels(bookSnapshotDepth)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "orderbook read failed", err.Error())
		return
	}
	askLevels, err := st.Book().Side(orderbook.Ask).Levels(bookSnapshotDepth)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "orderbook read failed", err.Error())
		return
	}

	respondJSON(w, OrderbookSnapshot{
		Symbol:    symbol,
		Bids:      toPriceLevels(bidLevels),
		Asks:      toPriceLevels(askLevels),
		Timestamp: time.Now().UnixMilli(),
	})
}

func toPriceLevels(orders []orderbook.RestingOrder) []PriceLevel {
	out := make([]PriceLevel, len(orders))
	for i, o := range orders {
		out[i] = PriceLevel{
			OrderID: keyString(o.OrderID.Hi, o.OrderID.Lo),
			Owner:   common.Hash(o.Owner).Hex(),
			Price:   o.Price,
			Qty:     o.QtyRemaining,
			Expiry:  o.Expiry,
		}
	}
	return out
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	st, err := s.eng.State(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}

	var records []tradelog.Record
	if err := st.Trades().Scan(func(rec tradelog.Record) bool {
		records = append(records, rec)
		return true
	}); err != nil {
		respondError(w, http.StatusInternalServerError, "trade log read failed", err.Error())
		return
	}

	// Scan yields oldest-first; the response is newest-first.
	trades := make([]TradeInfo, len(records))
	for i, rec := range records {
		side := "bid"
		if rec.TakerSide == uint8(orderbook.Ask) {
			side = "ask"
		}
		trades[len(records)-1-i] = TradeInfo{
			TradeID:   rec.TradeID,
			Maker:     common.Hash(rec.Maker).Hex(),
			Taker:     common.Hash(rec.Taker).Hex(),
			TakerSide: side,
			Price:     rec.Price,
			Amount:    rec.Amount,
			Timestamp: rec.Ts,
		}
	}
	respondJSON(w, trades)
}

func (s *Server) handleLogStatus(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	head := r.URL.Query().Get("head")
	activeHead := head != "b"

	items, prev, next, err := s.eng.LogStatus(symbol, activeHead)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}
	headName := "a"
	if !activeHead {
		headName = "b"
	}
	respondJSON(w, LogStatusInfo{
		Symbol: symbol,
		Head:   headName,
		Items:  items,
		Prev:   prev.Hex(),
		Next:   next.Hex(),
	})
}

// ==============================
// REST Handlers: trading
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req LimitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}
	symbol := mux.Vars(r)["symbol"]

	params := matchengine.LimitParams{
		Owner:   common.HexToHash(req.Owner),
		Side:    side,
		Qty:     req.Qty,
		Price:   req.Price,
		Post:    req.Post,
		Fill:    req.Fill,
		Expires: req.Expires,
		Preview: req.Preview,
		Now:     time.Now().Unix(),
	}

	ctx := r.Context()
	var result matchengine.TradeResult
	if side == orderbook.Bid {
		result, err = s.eng.LimitBid(ctx, symbol, params)
	} else {
		result, err = s.eng.LimitAsk(ctx, symbol, params)
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "order rejected", err.Error())
		return
	}

	if !req.Preview {
		s.broadcastBook(symbol)
		if result.TokensReceived > 0 {
			s.hub.BroadcastToChannel(tradesChannel(symbol), TradeUpdate{
				Type:      "trade",
				Symbol:    symbol,
				Price:     req.Price,
				Amount:    result.TokensReceived,
				TakerSide: side.String(),
				Timestamp: time.Now().UnixMilli(),
			})
		}
	}

	respondJSON(w, LimitOrderResponse{
		TokensSent:     result.TokensSent,
		TokensReceived: result.TokensReceived,
		TokensFee:      result.TokensFee,
		Posted:         result.Posted,
		PostedQuantity: result.PostedQuantity,
		OrderID:        keyString(result.OrderID.Hi, result.OrderID.Lo),
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}
	orderID, err := parseOrderID(req.OrderID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid orderId", err.Error())
		return
	}
	symbol := mux.Vars(r)["symbol"]

	result, err := s.eng.CancelOrder(r.Context(), symbol, common.HexToHash(req.Owner), side, orderID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "cancel rejected", err.Error())
		return
	}
	s.broadcastBook(symbol)
	respondJSON(w, WithdrawResponse{MktTokens: result.MktTokens, PrcTokens: result.PrcTokens})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	symbol := mux.Vars(r)["symbol"]
	extra := make([]common.Hash, len(req.ExtraLogIDs))
	for i, id := range req.ExtraLogIDs {
		extra[i] = common.HexToHash(id)
	}
	result, err := s.eng.Withdraw(r.Context(), symbol, common.HexToHash(req.Owner), extra)
	if err != nil {
		respondError(w, http.StatusBadRequest, "withdraw rejected", err.Error())
		return
	}
	respondJSON(w, WithdrawResponse{MktTokens: result.MktTokens, PrcTokens: result.PrcTokens})
}

// ==============================
// REST Handlers: admin (manager_*, spec §4.7/§6)
// ==============================

func (s *Server) handleManagerCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req ManagerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}
	orderID, err := parseOrderID(req.OrderID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid orderId", err.Error())
		return
	}
	symbol := mux.Vars(r)["symbol"]
	result, err := s.eng.ManagerCancelOrder(r.Context(), symbol, common.HexToHash(req.Caller), side, orderID)
	if err != nil {
		respondError(w, http.StatusForbidden, "manager_cancel_order rejected", err.Error())
		return
	}
	s.broadcastBook(symbol)
	respondJSON(w, WithdrawResponse{MktTokens: result.MktTokens, PrcTokens: result.PrcTokens})
}

func (s *Server) handleManagerWithdraw(w http.ResponseWriter, r *http.Request) {
	var req ManagerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	symbol := mux.Vars(r)["symbol"]
	extra := make([]common.Hash, len(req.ExtraLogIDs))
	for i, id := range req.ExtraLogIDs {
		extra[i] = common.HexToHash(id)
	}
	result, err := s.eng.ManagerWithdraw(r.Context(), symbol, common.HexToHash(req.Caller), common.HexToHash(req.Owner), extra)
	if err != nil {
		respondError(w, http.StatusForbidden, "manager_withdraw rejected", err.Error())
		return
	}
	respondJSON(w, WithdrawResponse{MktTokens: result.MktTokens, PrcTokens: result.PrcTokens})
}

func (s *Server) handleManagerVaultWithdraw(w http.ResponseWriter, r *http.Request) {
	var req ManagerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	symbol := mux.Vars(r)["symbol"]
	if err := s.eng.ManagerVaultWithdraw(r.Context(), symbol, common.HexToHash(req.Caller), req.Amount); err != nil {
		respondError(w, http.StatusForbidden, "manager_vault_withdraw rejected", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleManagerTransferSol(w http.ResponseWriter, r *http.Request) {
	var req ManagerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	symbol := mux.Vars(r)["symbol"]
	err := s.eng.ManagerTransferSol(r.Context(), symbol, common.HexToHash(req.Caller), common.HexToHash(req.Dst), common.HexToHash(req.Src), req.Amount)
	if err != nil {
		respondError(w, http.StatusForbidden, "manager_transfer_sol rejected", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleVaultDeposit(w http.ResponseWriter, r *http.Request) {
	var req ManagerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	symbol := mux.Vars(r)["symbol"]
	logIDs := make([]common.Hash, len(req.LogIDs))
	for i, id := range req.LogIDs {
		logIDs[i] = common.HexToHash(id)
	}
	migrated, err := s.eng.VaultDeposit(r.Context(), symbol, engine.VaultDepositParams{
		Caller:      common.HexToHash(req.Caller),
		LogIDs:      logIDs,
		StaleBefore: req.StaleBefore,
	})
	if err != nil {
		respondError(w, http.StatusForbidden, "vault_deposit rejected", err.Error())
		return
	}
	respondJSON(w, map[string]int{"migrated": migrated})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast helpers
// ==============================

func (s *Server) broadcastBook(symbol string) {
	st, err := s.eng.State(symbol)
	if err != nil {
		return
	}
	bidLevels, err := st.Book().Side(orderbook.Bid).Levels(bookSnapshotDepth)
	if err != nil {
		return
	}
	askLevels, err := st.Book().Side(orderbook.Ask).Levels(bookSnapshotDepth)
	if err != nil {
		return
	}
	s.hub.BroadcastToChannel(orderbookChannel(symbol), OrderbookUpdate{
		Type:      "orderbook",
		Symbol:    symbol,
		Bids:      toPriceLevels(bidLevels),
		Asks:      toPriceLevels(askLevels),
		Timestamp: time.Now().UnixMilli(),
	})
}

// ==============================
// Helper Functions
// ==============================

func parseSide(s string) (orderbook.Side, error) {
	switch s {
	case "bid":
		return orderbook.Bid, nil
	case "ask":
		return orderbook.Ask, nil
	default:
		return 0, fmt.Errorf("side must be \"bid\" or \"ask\", got %q", s)
	}
}

func parseOrderID(s string) (critbit.Key128, error) {
	hi, lo, err := parseKeyString(s)
	if err != nil {
		return critbit.Key128{}, fmt.Errorf("malformed order id %q: %w", s, err)
	}
	return critbit.Key128{Hi: hi, Lo: lo}, nil
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}
