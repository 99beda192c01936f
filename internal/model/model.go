// Package model defines the core domain types shared across the crypto
// engine. All monetary values use shopspring/decimal — never float64 for
// money. Trend and volatility are dimensionless multipliers and stay float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventScope determines which coins a market event hits.
type EventScope string

const (
	ScopeSingle         EventScope = "single"
	ScopeAll            EventScope = "all"
	ScopeRandomMultiple EventScope = "random_multiple"
)

// OrderStatus is the trigger-order state machine. Transitions are one-way:
// active is the only non-terminal state.
type OrderStatus string

const (
	OrderActive    OrderStatus = "active"
	OrderExecuted  OrderStatus = "executed"
	OrderCancelled OrderStatus = "cancelled"
	OrderFailed    OrderStatus = "failed"
)

// Terminal reports whether the status can never change again.
func (s OrderStatus) Terminal() bool { return s != OrderActive }

// TransactionType tags audit-log rows.
type TransactionType string

const (
	TxBuy  TransactionType = "buy"
	TxSell TransactionType = "sell"
)

// MarketPhase is the coarse regime label derived from average coin
// performance since inception.
type MarketPhase string

const (
	PhaseBull     MarketPhase = "bull"
	PhaseBear     MarketPhase = "bear"
	PhaseVolatile MarketPhase = "volatile"
	PhaseNormal   MarketPhase = "normal"
)

// Coin is the mutable per-ticker market snapshot. Created once at market
// init, mutated every tick, deleted only on full market reset.
type Coin struct {
	Ticker          string          `json:"ticker" db:"ticker"`
	Name            string          `json:"name" db:"name"`
	Description     string          `json:"description" db:"description"`
	CurrentPrice    decimal.Decimal `json:"current_price" db:"current_price"`
	StartingPrice   decimal.Decimal `json:"starting_price" db:"starting_price"`
	Trend           float64         `json:"trend" db:"trend"`
	DailyVolatility float64         `json:"daily_volatility" db:"daily_volatility"`
	LastUpdated     time.Time       `json:"last_updated" db:"last_updated"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// PricePoint is one row of the append-only price history. Never mutated;
// pruned only by time-window queries.
type PricePoint struct {
	Ticker    string          `json:"ticker" db:"ticker"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// MarketEvent records one fired scheduled (or manual) event.
type MarketEvent struct {
	ID            string     `json:"id" db:"id"`
	Message       string     `json:"message" db:"message"`
	Impact        float64    `json:"impact" db:"impact"` // signed fractional price delta
	AffectedCoins []string   `json:"affected_coins" db:"affected_coins"`
	Scope         EventScope `json:"scope" db:"scope"`
	Timestamp     time.Time  `json:"timestamp" db:"timestamp"`
}

// Portfolio holds one user's holdings and cost accounting.
//
// Invariants: for every ticker, CostBasis[ticker] scales proportionally with
// Holdings[ticker] under partial sells, and the sum of CostBasis equals
// TotalInvested. AllTimeProfitLoss == AllTimeReturned - AllTimeInvested.
type Portfolio struct {
	UserID            string                     `json:"user_id"`
	Holdings          map[string]decimal.Decimal `json:"holdings"`
	CostBasis         map[string]decimal.Decimal `json:"cost_basis"`
	TotalInvested     decimal.Decimal            `json:"total_invested"`
	AllTimeInvested   decimal.Decimal            `json:"all_time_invested"`
	AllTimeReturned   decimal.Decimal            `json:"all_time_returned"`
	AllTimeProfitLoss decimal.Decimal            `json:"all_time_profit_loss"`
	CreatedAt         time.Time                  `json:"created_at"`
}

// Transaction is an immutable audit record of a buy or sell. Once created,
// these are never modified or deleted (except on full market reset).
type Transaction struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Ticker    string          `json:"ticker" db:"ticker"`
	Type      TransactionType `json:"type" db:"type"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Price     decimal.Decimal `json:"price" db:"price"`
	TotalCost decimal.Decimal `json:"total_cost" db:"total_cost"`
	Fee       decimal.Decimal `json:"fee" db:"fee"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// TriggerOrder is a standing sell instruction that fires when a coin's price
// reaches the target. Amount is the holding size captured at creation; the
// execution sells whatever the user still holds at fire time.
type TriggerOrder struct {
	ID                string          `json:"id" db:"id"`
	UserID            string          `json:"user_id" db:"user_id"`
	Ticker            string          `json:"ticker" db:"ticker"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	TargetGainPercent float64         `json:"target_gain_percent" db:"target_gain_percent"`
	AvgPurchasePrice  decimal.Decimal `json:"avg_purchase_price" db:"avg_purchase_price"`
	TriggerPrice      decimal.Decimal `json:"trigger_price" db:"trigger_price"`
	Status            OrderStatus     `json:"status" db:"status"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	ExecutedAt        *time.Time      `json:"executed_at,omitempty" db:"executed_at"`
	ExecutionPrice    decimal.Decimal `json:"execution_price" db:"execution_price"`
	FailureReason     string          `json:"failure_reason,omitempty" db:"failure_reason"`
}
