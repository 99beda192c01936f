// Package api provides the HTTP handlers for the market engine: coin and
// price queries, trading, trigger orders, and the administrative surface.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/gamby/crypto-engine/internal/balance"
	"github.com/gamby/crypto-engine/internal/balancer"
	"github.com/gamby/crypto-engine/internal/catalog"
	"github.com/gamby/crypto-engine/internal/engine"
	"github.com/gamby/crypto-engine/internal/market"
	"github.com/gamby/crypto-engine/internal/model"
	"github.com/gamby/crypto-engine/internal/portfolio"
	"github.com/gamby/crypto-engine/internal/store"
	"github.com/gamby/crypto-engine/internal/trigger"
)

// Service handles HTTP requests against the market engine.
type Service struct {
	store      store.Store
	balances   balance.Ledger
	portfolios *portfolio.Ledger
	triggers   *trigger.Ledger
	manager    *market.Manager
	balancer   *balancer.Balancer
	engine     *engine.Engine
	hub        *WSHub
}

// NewService creates the HTTP service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(
	st store.Store,
	balances balance.Ledger,
	portfolios *portfolio.Ledger,
	triggers *trigger.Ledger,
	manager *market.Manager,
	bal *balancer.Balancer,
	eng *engine.Engine,
	hub *WSHub,
) *Service {
	return &Service{
		store:      st,
		balances:   balances,
		portfolios: portfolios,
		triggers:   triggers,
		manager:    manager,
		balancer:   bal,
		engine:     eng,
		hub:        hub,
	}
}

// Routes mounts every endpoint under the given router.
func (s *Service) Routes(r chi.Router) {
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	r.Get("/coins", s.ListCoins)
	r.Get("/coins/{ticker}", s.GetCoin)
	r.Get("/coins/{ticker}/history", s.GetPriceHistory)
	r.Get("/coins/{ticker}/analysis", s.GetMarketAnalysis)
	r.Get("/events", s.GetRecentEvents)

	r.Post("/trade/buy", s.Buy)
	r.Post("/trade/sell", s.Sell)
	r.Post("/trade/sell-all", s.SellAll)

	r.Get("/portfolio/{userID}", s.GetPortfolio)
	r.Get("/portfolio/{userID}/transactions", s.GetTransactions)
	r.Get("/portfolio/{userID}/triggers", s.ListTriggers)
	r.Get("/leaderboard", s.GetLeaderboard)

	r.Post("/triggers", s.CreateTrigger)
	r.Get("/triggers/summary", s.SummarizeTriggers)
	r.Get("/triggers/{orderID}", s.GetTrigger)
	r.Delete("/triggers/{orderID}", s.CancelTrigger)

	r.Get("/market/status", s.GetMarketStatus)
	r.Get("/balancer", s.GetBalancerStatus)

	r.Post("/admin/tick", s.ForceTick)
	r.Post("/admin/event", s.FireEvent)
	r.Post("/admin/reset", s.ResetMarket)
}

// --- Request/Response types ---

// BuyRequest is the JSON body for POST /trade/buy. With All set, the
// user's entire points balance is spent and Spend is ignored.
type BuyRequest struct {
	UserID string          `json:"user_id"`
	Ticker string          `json:"ticker"`
	Spend  decimal.Decimal `json:"spend"`
	All    bool            `json:"all,omitempty"`
}

// SellRequest is the JSON body for POST /trade/sell. With All set, the
// whole position is sold and Amount is ignored.
type SellRequest struct {
	UserID string          `json:"user_id"`
	Ticker string          `json:"ticker"`
	Amount decimal.Decimal `json:"amount"`
	All    bool            `json:"all,omitempty"`
}

// SellAllRequest is the JSON body for POST /trade/sell-all.
type SellAllRequest struct {
	UserID string `json:"user_id"`
}

// CreateTriggerRequest is the JSON body for POST /triggers.
type CreateTriggerRequest struct {
	UserID            string          `json:"user_id"`
	Ticker            string          `json:"ticker"`
	Amount            decimal.Decimal `json:"amount"`
	TargetGainPercent float64         `json:"target_gain_percent"`
}

// FireEventRequest is the JSON body for POST /admin/event.
type FireEventRequest struct {
	Type   string `json:"type"`
	Ticker string `json:"ticker,omitempty"`
}

// MarketAnalysis is the response for GET /coins/{ticker}/analysis.
type MarketAnalysis struct {
	Ticker         string            `json:"ticker"`
	CurrentPrice   decimal.Decimal   `json:"current_price"`
	Phase          model.MarketPhase `json:"phase"`
	Indicators     engine.Indicators `json:"indicators"`
	Recommendation string            `json:"recommendation"`
}

// --- Coins ---

// ListCoins handles GET /api/v1/coins
func (s *Service) ListCoins(w http.ResponseWriter, r *http.Request) {
	coins, err := s.store.ListCoins(r.Context())
	if err != nil {
		writeError(w, "failed to list coins", http.StatusInternalServerError)
		return
	}
	if coins == nil {
		coins = []model.Coin{}
	}
	writeJSON(w, http.StatusOK, coins)
}

// GetCoin handles GET /api/v1/coins/{ticker}
func (s *Service) GetCoin(w http.ResponseWriter, r *http.Request) {
	coin, err := s.store.GetCoin(r.Context(), catalog.Normalize(chi.URLParam(r, "ticker")))
	if err != nil {
		writeError(w, "coin not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, coin)
}

// GetPriceHistory handles GET /api/v1/coins/{ticker}/history?hours=N
func (s *Service) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	ticker := catalog.Normalize(chi.URLParam(r, "ticker"))
	if _, err := s.store.GetCoin(r.Context(), ticker); err != nil {
		writeError(w, "coin not found", http.StatusNotFound)
		return
	}

	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 24*30 {
			writeError(w, "hours must be a positive integer up to 720", http.StatusBadRequest)
			return
		}
		hours = n
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	points, err := s.store.GetPriceHistory(r.Context(), ticker, since)
	if err != nil {
		writeError(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if points == nil {
		points = []model.PricePoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

// GetMarketAnalysis handles GET /api/v1/coins/{ticker}/analysis
func (s *Service) GetMarketAnalysis(w http.ResponseWriter, r *http.Request) {
	coin, err := s.store.GetCoin(r.Context(), catalog.Normalize(chi.URLParam(r, "ticker")))
	if err != nil {
		writeError(w, "coin not found", http.StatusNotFound)
		return
	}

	ind := s.engine.IndicatorsFor(coin.Ticker)
	writeJSON(w, http.StatusOK, MarketAnalysis{
		Ticker:         coin.Ticker,
		CurrentPrice:   coin.CurrentPrice,
		Phase:          s.engine.Phase(),
		Indicators:     ind,
		Recommendation: recommend(ind),
	})
}

// GetRecentEvents handles GET /api/v1/events
func (s *Service) GetRecentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.GetRecentEvents(r.Context(), time.Now().UTC().Add(-time.Hour))
	if err != nil {
		writeError(w, "failed to load events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.MarketEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- Trading ---

// Buy handles POST /api/v1/trade/buy
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	spend := req.Spend
	if req.All {
		bal, err := s.balances.GetBalance(ctx, req.UserID)
		if err != nil {
			writeError(w, "failed to read balance", http.StatusInternalServerError)
			return
		}
		spend = bal
	}

	res, err := s.portfolios.Buy(ctx, req.UserID, req.Ticker, spend)
	if err != nil {
		writeTradeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Sell handles POST /api/v1/trade/sell
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	amount := req.Amount
	if req.All {
		p, err := s.store.GetPortfolio(ctx, req.UserID)
		if err != nil {
			writeError(w, "failed to load portfolio", http.StatusInternalServerError)
			return
		}
		amount = p.Holdings[catalog.Normalize(req.Ticker)]
	}

	res, err := s.portfolios.Sell(ctx, req.UserID, req.Ticker, amount)
	if err != nil {
		writeTradeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SellAll handles POST /api/v1/trade/sell-all
func (s *Service) SellAll(w http.ResponseWriter, r *http.Request) {
	var req SellAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	results, err := s.portfolios.SellAll(r.Context(), req.UserID)
	if err != nil {
		writeTradeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// --- Portfolio ---

// GetPortfolio handles GET /api/v1/portfolio/{userID}
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	v, err := s.portfolios.Valuation(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, "failed to value portfolio", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetTransactions handles GET /api/v1/portfolio/{userID}/transactions
func (s *Service) GetTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, "limit must be a positive integer up to 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	txs, err := s.store.GetUserTransactions(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeError(w, "failed to load transactions", http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// GetLeaderboard handles GET /api/v1/leaderboard
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, "limit must be a positive integer up to 100", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.portfolios.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to build leaderboard", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []portfolio.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Trigger orders ---

// CreateTrigger handles POST /api/v1/triggers
func (s *Service) CreateTrigger(w http.ResponseWriter, r *http.Request) {
	var req CreateTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	order, err := s.triggers.Create(r.Context(), req.UserID, req.Ticker, req.Amount, req.TargetGainPercent)
	if err != nil {
		writeTradeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// GetTrigger handles GET /api/v1/triggers/{orderID}
func (s *Service) GetTrigger(w http.ResponseWriter, r *http.Request) {
	order, err := s.triggers.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, "order not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ListTriggers handles GET /api/v1/portfolio/{userID}/triggers
func (s *Service) ListTriggers(w http.ResponseWriter, r *http.Request) {
	orders, err := s.triggers.ListActive(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, "failed to list orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []model.TriggerOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// CancelTrigger handles DELETE /api/v1/triggers/{orderID}?user_id=U
func (s *Service) CancelTrigger(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	err := s.triggers.Cancel(r.Context(), userID, chi.URLParam(r, "orderID"))
	switch {
	case errors.Is(err, trigger.ErrNotCancellable):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, "order not found", http.StatusNotFound)
	case err != nil:
		writeError(w, "failed to cancel order", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

// SummarizeTriggers handles GET /api/v1/triggers/summary
func (s *Service) SummarizeTriggers(w http.ResponseWriter, r *http.Request) {
	summary, err := s.triggers.Summarize(r.Context())
	if err != nil {
		writeError(w, "failed to summarize orders", http.StatusInternalServerError)
		return
	}
	if summary == nil {
		summary = []store.TriggerSummary{}
	}
	writeJSON(w, http.StatusOK, summary)
}

// --- Market status / admin ---

// GetMarketStatus handles GET /api/v1/market/status
func (s *Service) GetMarketStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.manager.Status(r.Context())
	if err != nil {
		writeError(w, "failed to read market status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetBalancerStatus handles GET /api/v1/balancer
func (s *Service) GetBalancerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.balancer.Status())
}

// ForceTick handles POST /api/v1/admin/tick
func (s *Service) ForceTick(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.ForceUpdate(r.Context()); err != nil {
		writeError(w, "tick failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	status, err := s.manager.Status(r.Context())
	if err != nil {
		writeError(w, "failed to read market status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// FireEvent handles POST /api/v1/admin/event
func (s *Service) FireEvent(w http.ResponseWriter, r *http.Request) {
	var req FireEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	event, err := s.manager.TriggerManualEvent(r.Context(), engine.EventKind(req.Type), catalog.Normalize(req.Ticker))
	switch {
	case errors.Is(err, catalog.ErrUnknownTicker):
		writeError(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		writeJSON(w, http.StatusOK, event)
	}
}

// ResetMarket handles POST /api/v1/admin/reset
func (s *Service) ResetMarket(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Reset(r.Context()); err != nil {
		writeError(w, "reset failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// --- Helpers ---

// recommend turns an indicator snapshot into a human-readable call. It is
// entertainment, not financial advice, same as the rest of the market.
func recommend(ind engine.Indicators) string {
	score := 0
	switch ind.Crossover {
	case engine.CrossoverBullish:
		score++
	case engine.CrossoverBearish:
		score--
	}
	if ind.TrendStrength > 0.3 {
		score++
	}
	if ind.TrendStrength < -0.3 {
		score--
	}
	if ind.NearSupport {
		score++
	}
	if ind.NearResistance {
		score--
	}

	switch {
	case score >= 2:
		return "strong buy"
	case score == 1:
		return "buy"
	case score == -1:
		return "sell"
	case score <= -2:
		return "strong sell"
	default:
		return "hold"
	}
}

// writeTradeError maps domain errors onto HTTP statuses.
func writeTradeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrUnknownTicker), errors.Is(err, store.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, portfolio.ErrNonPositiveAmount),
		errors.Is(err, trigger.ErrNonPositiveGain):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, balance.ErrInsufficientFunds),
		errors.Is(err, store.ErrInsufficientHoldings),
		errors.Is(err, trigger.ErrInsufficientHoldings),
		errors.Is(err, portfolio.ErrNothingToSell):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
