// Package store defines the persistence interface for the crypto engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and single-process deployments).
//
// Portfolio mutations and trigger-order status transitions are store-level
// atomic operations: callers get read-modify-write semantics without a
// lost-update window, and "transition if still active" is a single
// conditional update rather than a read followed by a write.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gamby/crypto-engine/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInsufficientHoldings is returned by ApplySell when the portfolio
	// holds less than the requested amount at execution time.
	ErrInsufficientHoldings = errors.New("store: insufficient holdings")
)

// HoldingEpsilon is the dust threshold: holdings at or below it are pruned
// together with their cost-basis entry.
var HoldingEpsilon = decimal.New(1, -9)

// TriggerSummary aggregates active trigger orders for one ticker.
type TriggerSummary struct {
	Ticker          string          `json:"ticker"`
	Count           int             `json:"count"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	AvgTriggerPrice decimal.Decimal `json:"avg_trigger_price"`
}

// Store is the persistence interface for the five record types.
type Store interface {
	// --- Coins ---

	// UpsertCoin creates or replaces a coin definition (market init/reset).
	UpsertCoin(ctx context.Context, coin *model.Coin) error

	// GetCoin retrieves a coin snapshot by ticker.
	GetCoin(ctx context.Context, ticker string) (*model.Coin, error)

	// ListCoins returns all coins in catalog order.
	ListCoins(ctx context.Context) ([]model.Coin, error)

	// CommitPrice updates the coin's current price and last-updated stamp
	// and appends one PricePoint history row, in that order.
	CommitPrice(ctx context.Context, ticker string, price decimal.Decimal, at time.Time) error

	// UpdateCoinVolatility sets a coin's daily volatility, and its trend
	// when newTrend is non-nil (daily revolatilization).
	UpdateCoinVolatility(ctx context.Context, ticker string, volatility float64, newTrend *float64) error

	// GetPriceHistory returns history rows at or after since, oldest first.
	GetPriceHistory(ctx context.Context, ticker string, since time.Time) ([]model.PricePoint, error)

	// --- Portfolios ---

	// GetPortfolio returns the user's portfolio, creating an empty one on
	// first access.
	GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error)

	// ApplyBuy atomically credits holdings and cost accounting:
	// holdings += amount; cost_basis += spend; total_invested += spend;
	// all_time_invested += spend.
	ApplyBuy(ctx context.Context, userID, ticker string, amount, spend decimal.Decimal) error

	// ApplySell atomically removes amount from holdings with proportional
	// cost-basis reduction and credits proceeds to all-time tracking.
	// Returns the cost basis removed. Fails with ErrInsufficientHoldings
	// if the portfolio no longer holds amount; no state is mutated then.
	ApplySell(ctx context.Context, userID, ticker string, amount, proceeds decimal.Decimal) (decimal.Decimal, error)

	// ListTradedPortfolios returns every portfolio with all_time_invested > 0,
	// sorted by all-time profit/loss descending.
	ListTradedPortfolios(ctx context.Context, limit int) ([]model.Portfolio, error)

	// --- Transactions (immutable audit log) ---

	InsertTransaction(ctx context.Context, tx *model.Transaction) error
	GetUserTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error)

	// --- Trigger orders ---

	InsertTriggerOrder(ctx context.Context, order *model.TriggerOrder) error
	GetTriggerOrder(ctx context.Context, id string) (*model.TriggerOrder, error)

	// ListUserTriggerOrders returns a user's orders with the given status,
	// newest first.
	ListUserTriggerOrders(ctx context.Context, userID string, status model.OrderStatus) ([]model.TriggerOrder, error)

	// ListMaturedTriggerOrders returns active orders for ticker whose
	// trigger price has been reached (price >= trigger_price).
	ListMaturedTriggerOrders(ctx context.Context, ticker string, price decimal.Decimal) ([]model.TriggerOrder, error)

	// ClaimTriggerOrder transitions active→executed, recording execution
	// price and time. Returns false without error when the order is no
	// longer active: exactly one concurrent claimer wins.
	ClaimTriggerOrder(ctx context.Context, id string, price decimal.Decimal, at time.Time) (bool, error)

	// CancelTriggerOrder transitions active→cancelled for the given user.
	// Returns false when the order is missing, not theirs, or not active.
	CancelTriggerOrder(ctx context.Context, id, userID string) (bool, error)

	// FailTriggerOrder marks an order failed with a reason. Used by the
	// execution path after a claim when the sell cannot complete.
	FailTriggerOrder(ctx context.Context, id, reason string) error

	// SummarizeActiveTriggers aggregates active orders per ticker.
	SummarizeActiveTriggers(ctx context.Context) ([]TriggerSummary, error)

	// PruneTriggerOrders deletes terminal orders created before cutoff.
	PruneTriggerOrders(ctx context.Context, cutoff time.Time) (int64, error)

	// --- Market events ---

	InsertMarketEvent(ctx context.Context, event *model.MarketEvent) error
	GetRecentEvents(ctx context.Context, since time.Time) ([]model.MarketEvent, error)

	// --- Reset ---

	// Reset wipes all five record types (full market reset).
	Reset(ctx context.Context) error
}
