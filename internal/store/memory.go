package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gamby/crypto-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps under one mutex, which
// gives every mutation the same atomicity the SQL implementation gets from
// transactions. Suitable for tests and single-process deployments; data does
// not survive a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	coins      map[string]*model.Coin
	coinOrder  []string
	prices     []model.PricePoint
	portfolios map[string]*model.Portfolio
	txLog      []model.Transaction
	orders     map[string]*model.TriggerOrder
	events     []model.MarketEvent
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		coins:      make(map[string]*model.Coin),
		portfolios: make(map[string]*model.Portfolio),
		orders:     make(map[string]*model.TriggerOrder),
	}
}

// --- Coins ---

func (s *MemoryStore) UpsertCoin(_ context.Context, coin *model.Coin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.coins[coin.Ticker]; !exists {
		s.coinOrder = append(s.coinOrder, coin.Ticker)
	}
	c := *coin
	s.coins[coin.Ticker] = &c
	return nil
}

func (s *MemoryStore) GetCoin(_ context.Context, ticker string) (*model.Coin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.coins[ticker]
	if !ok {
		return nil, fmt.Errorf("coin %s: %w", ticker, ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) ListCoins(_ context.Context) ([]model.Coin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coins := make([]model.Coin, 0, len(s.coinOrder))
	for _, ticker := range s.coinOrder {
		if c, ok := s.coins[ticker]; ok {
			coins = append(coins, *c)
		}
	}
	return coins, nil
}

func (s *MemoryStore) CommitPrice(_ context.Context, ticker string, price decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coins[ticker]
	if !ok {
		return fmt.Errorf("coin %s: %w", ticker, ErrNotFound)
	}
	c.CurrentPrice = price
	c.LastUpdated = at
	s.prices = append(s.prices, model.PricePoint{Ticker: ticker, Price: price, Timestamp: at})
	return nil
}

func (s *MemoryStore) UpdateCoinVolatility(_ context.Context, ticker string, volatility float64, newTrend *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coins[ticker]
	if !ok {
		return fmt.Errorf("coin %s: %w", ticker, ErrNotFound)
	}
	c.DailyVolatility = volatility
	if newTrend != nil {
		c.Trend = *newTrend
	}
	return nil
}

func (s *MemoryStore) GetPriceHistory(_ context.Context, ticker string, since time.Time) ([]model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.PricePoint
	for _, p := range s.prices {
		if p.Ticker == ticker && !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- Portfolios ---

// getOrCreatePortfolio must be called with the write lock held.
func (s *MemoryStore) getOrCreatePortfolio(userID string) *model.Portfolio {
	p, ok := s.portfolios[userID]
	if !ok {
		p = &model.Portfolio{
			UserID:    userID,
			Holdings:  make(map[string]decimal.Decimal),
			CostBasis: make(map[string]decimal.Decimal),
			CreatedAt: time.Now().UTC(),
		}
		s.portfolios[userID] = p
	}
	return p
}

func copyPortfolio(p *model.Portfolio) *model.Portfolio {
	out := *p
	out.Holdings = make(map[string]decimal.Decimal, len(p.Holdings))
	out.CostBasis = make(map[string]decimal.Decimal, len(p.CostBasis))
	for k, v := range p.Holdings {
		out.Holdings[k] = v
	}
	for k, v := range p.CostBasis {
		out.CostBasis[k] = v
	}
	return &out
}

func (s *MemoryStore) GetPortfolio(_ context.Context, userID string) (*model.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copyPortfolio(s.getOrCreatePortfolio(userID)), nil
}

func (s *MemoryStore) ApplyBuy(_ context.Context, userID, ticker string, amount, spend decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.getOrCreatePortfolio(userID)
	p.Holdings[ticker] = p.Holdings[ticker].Add(amount)
	p.CostBasis[ticker] = p.CostBasis[ticker].Add(spend)
	p.TotalInvested = p.TotalInvested.Add(spend)
	p.AllTimeInvested = p.AllTimeInvested.Add(spend)
	p.AllTimeProfitLoss = p.AllTimeReturned.Sub(p.AllTimeInvested)
	return nil
}

func (s *MemoryStore) ApplySell(_ context.Context, userID, ticker string, amount, proceeds decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.getOrCreatePortfolio(userID)
	held := p.Holdings[ticker]
	if held.LessThan(amount) || amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("sell %s %s of %s held: %w",
			amount, ticker, held, ErrInsufficientHoldings)
	}

	// Proportional cost-basis removal preserves average unit cost.
	sellRatio := amount.Div(held)
	removedCost := p.CostBasis[ticker].Mul(sellRatio)

	p.Holdings[ticker] = held.Sub(amount)
	p.CostBasis[ticker] = p.CostBasis[ticker].Sub(removedCost)
	p.TotalInvested = p.TotalInvested.Sub(removedCost)
	p.AllTimeReturned = p.AllTimeReturned.Add(proceeds)
	p.AllTimeProfitLoss = p.AllTimeReturned.Sub(p.AllTimeInvested)

	// Prune dust, keeping sum(cost_basis) == total_invested.
	if p.Holdings[ticker].LessThanOrEqual(HoldingEpsilon) {
		residual := p.CostBasis[ticker]
		removedCost = removedCost.Add(residual)
		p.TotalInvested = p.TotalInvested.Sub(residual)
		delete(p.Holdings, ticker)
		delete(p.CostBasis, ticker)
	}
	return removedCost, nil
}

func (s *MemoryStore) ListTradedPortfolios(_ context.Context, limit int) ([]model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Portfolio
	for _, p := range s.portfolios {
		if p.AllTimeInvested.IsPositive() {
			out = append(out, *copyPortfolio(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AllTimeProfitLoss.GreaterThan(out[j].AllTimeProfitLoss)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Transactions ---

func (s *MemoryStore) InsertTransaction(_ context.Context, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txLog = append(s.txLog, *tx)
	return nil
}

func (s *MemoryStore) GetUserTransactions(_ context.Context, userID string, limit int) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Transaction
	for i := len(s.txLog) - 1; i >= 0; i-- {
		if s.txLog[i].UserID == userID {
			out = append(out, s.txLog[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// --- Trigger orders ---

func (s *MemoryStore) InsertTriggerOrder(_ context.Context, order *model.TriggerOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := *order
	s.orders[order.ID] = &o
	return nil
}

func (s *MemoryStore) GetTriggerOrder(_ context.Context, id string) (*model.TriggerOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("trigger order %s: %w", id, ErrNotFound)
	}
	out := *o
	return &out, nil
}

func (s *MemoryStore) ListUserTriggerOrders(_ context.Context, userID string, status model.OrderStatus) ([]model.TriggerOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.TriggerOrder
	for _, o := range s.orders {
		if o.UserID == userID && o.Status == status {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListMaturedTriggerOrders(_ context.Context, ticker string, price decimal.Decimal) ([]model.TriggerOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.TriggerOrder
	for _, o := range s.orders {
		if o.Ticker == ticker && o.Status == model.OrderActive && price.GreaterThanOrEqual(o.TriggerPrice) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ClaimTriggerOrder(_ context.Context, id string, price decimal.Decimal, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.Status != model.OrderActive {
		return false, nil
	}
	o.Status = model.OrderExecuted
	o.ExecutionPrice = price
	execAt := at
	o.ExecutedAt = &execAt
	return true, nil
}

func (s *MemoryStore) CancelTriggerOrder(_ context.Context, id, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.UserID != userID || o.Status != model.OrderActive {
		return false, nil
	}
	o.Status = model.OrderCancelled
	return true, nil
}

func (s *MemoryStore) FailTriggerOrder(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("trigger order %s: %w", id, ErrNotFound)
	}
	o.Status = model.OrderFailed
	o.FailureReason = reason
	o.ExecutedAt = nil
	o.ExecutionPrice = decimal.Zero
	return nil
}

func (s *MemoryStore) SummarizeActiveTriggers(_ context.Context) ([]TriggerSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := make(map[string]*TriggerSummary)
	for _, o := range s.orders {
		if o.Status != model.OrderActive {
			continue
		}
		sum, ok := agg[o.Ticker]
		if !ok {
			sum = &TriggerSummary{Ticker: o.Ticker}
			agg[o.Ticker] = sum
		}
		sum.Count++
		sum.TotalAmount = sum.TotalAmount.Add(o.Amount)
		sum.AvgTriggerPrice = sum.AvgTriggerPrice.Add(o.TriggerPrice)
	}

	out := make([]TriggerSummary, 0, len(agg))
	for _, sum := range agg {
		sum.AvgTriggerPrice = sum.AvgTriggerPrice.Div(decimal.NewFromInt(int64(sum.Count)))
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (s *MemoryStore) PruneTriggerOrders(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for id, o := range s.orders {
		if o.Status.Terminal() && o.CreatedAt.Before(cutoff) {
			delete(s.orders, id)
			pruned++
		}
	}
	return pruned, nil
}

// --- Market events ---

func (s *MemoryStore) InsertMarketEvent(_ context.Context, event *model.MarketEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *event
	e.AffectedCoins = append([]string(nil), event.AffectedCoins...)
	s.events = append(s.events, e)
	return nil
}

func (s *MemoryStore) GetRecentEvents(_ context.Context, since time.Time) ([]model.MarketEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.MarketEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		if !s.events[i].Timestamp.Before(since) {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

// --- Reset ---

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.coins = make(map[string]*model.Coin)
	s.coinOrder = nil
	s.prices = nil
	s.portfolios = make(map[string]*model.Portfolio)
	s.txLog = nil
	s.orders = make(map[string]*model.TriggerOrder)
	s.events = nil
	return nil
}
