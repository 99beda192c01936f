// Package trigger manages automatic sell orders that fire when a coin
// reaches a target gain over the holder's average purchase price.
//
// Execution is at-most-once: the status transition active -> executed is a
// single atomic conditional update in the store, and only the goroutine
// that wins that transition performs the sell. A claimed order whose sell
// then fails (holdings changed since creation) is demoted to failed and
// never retried.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gamby/crypto-engine/internal/catalog"
	"github.com/gamby/crypto-engine/internal/model"
	"github.com/gamby/crypto-engine/internal/portfolio"
	"github.com/gamby/crypto-engine/internal/store"
)

var (
	// ErrInsufficientHoldings rejects orders for more coins than held.
	ErrInsufficientHoldings = errors.New("trigger: insufficient holdings")

	// ErrNotCancellable is returned when the order already left the
	// active state.
	ErrNotCancellable = errors.New("trigger: order is no longer active")

	// ErrNonPositiveGain rejects zero or negative gain targets.
	ErrNonPositiveGain = errors.New("trigger: target gain must be positive")
)

// Execution reports one fired order.
type Execution struct {
	Order model.TriggerOrder     `json:"order"`
	Trade *portfolio.TradeResult `json:"trade,omitempty"`
}

// Ledger creates, cancels, and executes trigger orders.
type Ledger struct {
	store  store.Store
	trades *portfolio.Ledger
	logger *slog.Logger
}

// NewLedger creates a trigger Ledger.
func NewLedger(st store.Store, trades *portfolio.Ledger, logger *slog.Logger) *Ledger {
	return &Ledger{store: st, trades: trades, logger: logger}
}

// Create places a trigger order selling amount coins once the price
// reaches avgPurchasePrice * (1 + targetGainPercent/100). Holdings are
// validated now, not continuously; a later manual sell can still starve
// the order, in which case it fails at execution time.
func (l *Ledger) Create(ctx context.Context, userID, ticker string, amount decimal.Decimal, targetGainPercent float64) (*model.TriggerOrder, error) {
	if !amount.IsPositive() {
		return nil, portfolio.ErrNonPositiveAmount
	}
	if targetGainPercent <= 0 {
		return nil, ErrNonPositiveGain
	}

	coin, err := l.store.GetCoin(ctx, catalog.Normalize(ticker))
	if err != nil {
		return nil, err
	}
	p, err := l.store.GetPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}

	held := p.Holdings[coin.Ticker]
	if held.LessThan(amount) {
		return nil, fmt.Errorf("%w: have %s %s, order wants %s", ErrInsufficientHoldings, held, coin.Ticker, amount)
	}

	avgCost := p.CostBasis[coin.Ticker].Div(held)
	gain := decimal.NewFromFloat(1 + targetGainPercent/100)
	triggerPrice := avgCost.Mul(gain).Round(6)

	order := &model.TriggerOrder{
		ID:                uuid.NewString(),
		UserID:            userID,
		Ticker:            coin.Ticker,
		Amount:            amount,
		TargetGainPercent: targetGainPercent,
		AvgPurchasePrice:  avgCost.Round(6),
		TriggerPrice:      triggerPrice,
		Status:            model.OrderActive,
		CreatedAt:         time.Now().UTC(),
	}
	if err := l.store.InsertTriggerOrder(ctx, order); err != nil {
		return nil, err
	}

	l.logger.Info("trigger order created",
		"order_id", order.ID,
		"user_id", userID,
		"ticker", order.Ticker,
		"trigger_price", triggerPrice.String())
	return order, nil
}

// Cancel withdraws an order while it is still active. The compare-and-swap
// in the store guarantees an order racing with execution resolves one way
// only.
func (l *Ledger) Cancel(ctx context.Context, userID, orderID string) error {
	ok, err := l.store.CancelTriggerOrder(ctx, orderID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotCancellable
	}
	return nil
}

// ListActive returns the user's active orders.
func (l *Ledger) ListActive(ctx context.Context, userID string) ([]model.TriggerOrder, error) {
	return l.store.ListUserTriggerOrders(ctx, userID, model.OrderActive)
}

// Get returns one order by id.
func (l *Ledger) Get(ctx context.Context, orderID string) (*model.TriggerOrder, error) {
	return l.store.GetTriggerOrder(ctx, orderID)
}

// OnPriceUpdate evaluates every active order for the ticker whose trigger
// price the new price has reached, and executes the ones this call wins the
// claim on. Concurrent calls for the same tick are safe: the store-side
// conditional transition admits exactly one winner per order.
func (l *Ledger) OnPriceUpdate(ctx context.Context, ticker string, newPrice decimal.Decimal) ([]Execution, error) {
	matured, err := l.store.ListMaturedTriggerOrders(ctx, ticker, newPrice)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var executed []Execution
	for i := range matured {
		order := matured[i]

		claimed, err := l.store.ClaimTriggerOrder(ctx, order.ID, newPrice, now)
		if err != nil {
			l.logger.Error("trigger claim failed", "order_id", order.ID, "error", err)
			continue
		}
		if !claimed {
			// Another evaluator got here first, or the user cancelled.
			continue
		}

		order.Status = model.OrderExecuted
		order.ExecutedAt = &now
		order.ExecutionPrice = newPrice

		trade, err := l.trades.Sell(ctx, order.UserID, order.Ticker, order.Amount)
		if err != nil {
			// Holdings changed since creation. The order is spent either
			// way; mark it failed so it never fires again.
			reason := err.Error()
			if ferr := l.store.FailTriggerOrder(ctx, order.ID, reason); ferr != nil {
				l.logger.Error("trigger demotion failed", "order_id", order.ID, "error", ferr)
			}
			order.Status = model.OrderFailed
			order.FailureReason = reason
			l.logger.Warn("trigger order failed",
				"order_id", order.ID,
				"user_id", order.UserID,
				"ticker", order.Ticker,
				"reason", reason)
			executed = append(executed, Execution{Order: order})
			continue
		}

		l.logger.Info("trigger order executed",
			"order_id", order.ID,
			"user_id", order.UserID,
			"ticker", order.Ticker,
			"execution_price", newPrice.String(),
			"proceeds", trade.Proceeds.String())
		executed = append(executed, Execution{Order: order, Trade: trade})
	}
	return executed, nil
}

// Summarize reports active order counts and volume per ticker.
func (l *Ledger) Summarize(ctx context.Context) ([]store.TriggerSummary, error) {
	return l.store.SummarizeActiveTriggers(ctx)
}

// Prune deletes terminal orders older than the retention window and
// returns how many went.
func (l *Ledger) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return l.store.PruneTriggerOrders(ctx, time.Now().UTC().Add(-retention))
}
