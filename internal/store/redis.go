package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/gamby/crypto-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the two hot reads: coin snapshots and portfolios. Writes go to
// the primary store and invalidate the cache; everything else passes through.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Coins (read-through) ---

func (s *CachedStore) GetCoin(ctx context.Context, ticker string) (*model.Coin, error) {
	data, err := s.rdb.Get(ctx, coinKey(ticker)).Bytes()
	if err == nil {
		var c model.Coin
		if json.Unmarshal(data, &c) == nil {
			return &c, nil
		}
	}

	c, err := s.primary.GetCoin(ctx, ticker)
	if err != nil {
		return nil, err
	}
	s.cacheCoin(ctx, c)
	return c, nil
}

func (s *CachedStore) UpsertCoin(ctx context.Context, coin *model.Coin) error {
	if err := s.primary.UpsertCoin(ctx, coin); err != nil {
		return err
	}
	s.cacheCoin(ctx, coin)
	return nil
}

func (s *CachedStore) CommitPrice(ctx context.Context, ticker string, price decimal.Decimal, at time.Time) error {
	if err := s.primary.CommitPrice(ctx, ticker, price, at); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, coinKey(ticker))
	return nil
}

func (s *CachedStore) UpdateCoinVolatility(ctx context.Context, ticker string, volatility float64, newTrend *float64) error {
	if err := s.primary.UpdateCoinVolatility(ctx, ticker, volatility, newTrend); err != nil {
		return err
	}
	s.rdb.Del(ctx, coinKey(ticker))
	return nil
}

// --- Portfolios (read-through) ---

func (s *CachedStore) GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	data, err := s.rdb.Get(ctx, portfolioKey(userID)).Bytes()
	if err == nil {
		var p model.Portfolio
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, portfolioKey(userID), data, s.ttl)
	}
	return p, nil
}

func (s *CachedStore) ApplyBuy(ctx context.Context, userID, ticker string, amount, spend decimal.Decimal) error {
	if err := s.primary.ApplyBuy(ctx, userID, ticker, amount, spend); err != nil {
		return err
	}
	s.rdb.Del(ctx, portfolioKey(userID))
	return nil
}

func (s *CachedStore) ApplySell(ctx context.Context, userID, ticker string, amount, proceeds decimal.Decimal) (decimal.Decimal, error) {
	removed, err := s.primary.ApplySell(ctx, userID, ticker, amount, proceeds)
	if err != nil {
		return removed, err
	}
	s.rdb.Del(ctx, portfolioKey(userID))
	return removed, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListCoins(ctx context.Context) ([]model.Coin, error) {
	return s.primary.ListCoins(ctx)
}

func (s *CachedStore) GetPriceHistory(ctx context.Context, ticker string, since time.Time) ([]model.PricePoint, error) {
	return s.primary.GetPriceHistory(ctx, ticker, since)
}

func (s *CachedStore) ListTradedPortfolios(ctx context.Context, limit int) ([]model.Portfolio, error) {
	return s.primary.ListTradedPortfolios(ctx, limit)
}

func (s *CachedStore) InsertTransaction(ctx context.Context, tx *model.Transaction) error {
	return s.primary.InsertTransaction(ctx, tx)
}

func (s *CachedStore) GetUserTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	return s.primary.GetUserTransactions(ctx, userID, limit)
}

func (s *CachedStore) InsertTriggerOrder(ctx context.Context, order *model.TriggerOrder) error {
	return s.primary.InsertTriggerOrder(ctx, order)
}

func (s *CachedStore) GetTriggerOrder(ctx context.Context, id string) (*model.TriggerOrder, error) {
	return s.primary.GetTriggerOrder(ctx, id)
}

func (s *CachedStore) ListUserTriggerOrders(ctx context.Context, userID string, status model.OrderStatus) ([]model.TriggerOrder, error) {
	return s.primary.ListUserTriggerOrders(ctx, userID, status)
}

func (s *CachedStore) ListMaturedTriggerOrders(ctx context.Context, ticker string, price decimal.Decimal) ([]model.TriggerOrder, error) {
	return s.primary.ListMaturedTriggerOrders(ctx, ticker, price)
}

func (s *CachedStore) ClaimTriggerOrder(ctx context.Context, id string, price decimal.Decimal, at time.Time) (bool, error) {
	return s.primary.ClaimTriggerOrder(ctx, id, price, at)
}

func (s *CachedStore) CancelTriggerOrder(ctx context.Context, id, userID string) (bool, error) {
	return s.primary.CancelTriggerOrder(ctx, id, userID)
}

func (s *CachedStore) FailTriggerOrder(ctx context.Context, id, reason string) error {
	return s.primary.FailTriggerOrder(ctx, id, reason)
}

func (s *CachedStore) SummarizeActiveTriggers(ctx context.Context) ([]TriggerSummary, error) {
	return s.primary.SummarizeActiveTriggers(ctx)
}

func (s *CachedStore) PruneTriggerOrders(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.primary.PruneTriggerOrders(ctx, cutoff)
}

func (s *CachedStore) InsertMarketEvent(ctx context.Context, event *model.MarketEvent) error {
	return s.primary.InsertMarketEvent(ctx, event)
}

func (s *CachedStore) GetRecentEvents(ctx context.Context, since time.Time) ([]model.MarketEvent, error) {
	return s.primary.GetRecentEvents(ctx, since)
}

func (s *CachedStore) Reset(ctx context.Context) error {
	if err := s.primary.Reset(ctx); err != nil {
		return err
	}
	// Drop every cached record wholesale after a reset.
	s.rdb.FlushDB(ctx)
	return nil
}

// --- Cache helpers ---

func (s *CachedStore) cacheCoin(ctx context.Context, c *model.Coin) {
	if data, err := json.Marshal(c); err == nil {
		s.rdb.Set(ctx, coinKey(c.Ticker), data, s.ttl)
	}
}

func coinKey(ticker string) string     { return fmt.Sprintf("coin:%s", ticker) }
func portfolioKey(uid string) string   { return fmt.Sprintf("portfolio:%s", uid) }
