// Package portfolio implements trading against the points ledger with
// weighted-average cost-basis accounting.
//
// Accounting rules, in full:
//
//   - Buy debits the requested spend in full; the fee is absorbed inside
//     the spend, so coinsReceived = (spend - fee) / price while cost basis
//     and total invested grow by the whole spend.
//   - Sell removes cost basis proportionally to the fraction of holdings
//     sold, which keeps the average unit cost constant across partial
//     sells. Proceeds are credited net of fee.
//   - sum(cost_basis) == total_invested holds at all times, and
//     all_time_profit_loss == all_time_returned - all_time_invested.
//
// The "current" P/L reported by Valuation knowingly mixes realized and
// unrealized figures because total_invested shrinks on every sell. That is
// established game behavior players have built intuitions around; do not
// "fix" it here without a migration plan for historical numbers.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gamby/crypto-engine/internal/balance"
	"github.com/gamby/crypto-engine/internal/catalog"
	"github.com/gamby/crypto-engine/internal/engine"
	"github.com/gamby/crypto-engine/internal/metrics"
	"github.com/gamby/crypto-engine/internal/model"
	"github.com/gamby/crypto-engine/internal/store"
)

var (
	// ErrNonPositiveAmount rejects zero or negative trade sizes.
	ErrNonPositiveAmount = errors.New("portfolio: amount must be positive")

	// ErrNothingToSell is returned by SellAll on an empty portfolio.
	ErrNothingToSell = errors.New("portfolio: no holdings to sell")
)

// TradeResult reports one executed buy or sell.
type TradeResult struct {
	Ticker     string                `json:"ticker"`
	Type       model.TransactionType `json:"type"`
	Amount     decimal.Decimal       `json:"amount"`
	Price      decimal.Decimal       `json:"price"`
	Fee        decimal.Decimal       `json:"fee"`
	TotalCost  decimal.Decimal       `json:"total_cost,omitempty"`
	Proceeds   decimal.Decimal       `json:"proceeds,omitempty"`
	RealizedPL decimal.Decimal       `json:"realized_pl,omitempty"`
	NewBalance decimal.Decimal       `json:"new_balance"`
}

// Holding is one valued position inside a Valuation.
type Holding struct {
	Ticker       string          `json:"ticker"`
	Amount       decimal.Decimal `json:"amount"`
	CostBasis    decimal.Decimal `json:"cost_basis"`
	AvgUnitCost  decimal.Decimal `json:"avg_unit_cost"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	CurrentValue decimal.Decimal `json:"current_value"`
	UnrealizedPL decimal.Decimal `json:"unrealized_pl"`
}

// Valuation is a full portfolio snapshot at current prices.
type Valuation struct {
	UserID        string          `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	Holdings      []Holding       `json:"holdings"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	UnrealizedPL  decimal.Decimal `json:"unrealized_pl"`
	AllTimePL     decimal.Decimal `json:"all_time_pl"`
}

// LeaderboardEntry ranks one user by combined liquid + portfolio value.
type LeaderboardEntry struct {
	UserID       string          `json:"user_id"`
	CurrentValue decimal.Decimal `json:"current_value"`
	AllTimePL    decimal.Decimal `json:"all_time_pl"`
}

// Ledger executes trades and values portfolios.
type Ledger struct {
	store    store.Store
	balances balance.Ledger
	feeRate  decimal.Decimal
}

// NewLedger creates a Ledger with the given fee rate (a fraction, e.g.
// 0.002 for 0.2%).
func NewLedger(st store.Store, balances balance.Ledger, feeRate float64) *Ledger {
	return &Ledger{
		store:    st,
		balances: balances,
		feeRate:  decimal.NewFromFloat(feeRate),
	}
}

// Buy spends the given number of points on a coin at the current price.
// The full spend is debited; the fee comes out of the coins received, not
// on top of the spend.
func (l *Ledger) Buy(ctx context.Context, userID, ticker string, spend decimal.Decimal) (*TradeResult, error) {
	if !spend.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	coin, err := l.store.GetCoin(ctx, catalog.Normalize(ticker))
	if err != nil {
		return nil, err
	}

	fee := spend.Mul(l.feeRate)
	coins := spend.Sub(fee).Div(coin.CurrentPrice).Truncate(engine.AmountPrecision)
	if !coins.IsPositive() {
		return nil, fmt.Errorf("portfolio: spend of %s buys no %s at %s", spend, ticker, coin.CurrentPrice)
	}

	newBalance, err := l.balances.AdjustBalance(ctx, userID, spend.Neg())
	if err != nil {
		return nil, err
	}
	if err := l.store.ApplyBuy(ctx, userID, coin.Ticker, coins, spend); err != nil {
		// Refund the debit so the ledger and the portfolio stay in step.
		if _, rerr := l.balances.AdjustBalance(ctx, userID, spend); rerr != nil {
			return nil, fmt.Errorf("buy failed (%w) and refund failed: %v", err, rerr)
		}
		return nil, err
	}

	l.record(ctx, userID, coin.Ticker, model.TxBuy, coins, coin.CurrentPrice, spend, fee)

	return &TradeResult{
		Ticker:     coin.Ticker,
		Type:       model.TxBuy,
		Amount:     coins,
		Price:      coin.CurrentPrice,
		Fee:        fee,
		TotalCost:  spend,
		NewBalance: newBalance,
	}, nil
}

// Sell disposes of the given amount of a coin at the current price and
// credits the proceeds net of fee.
func (l *Ledger) Sell(ctx context.Context, userID, ticker string, amount decimal.Decimal) (*TradeResult, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	coin, err := l.store.GetCoin(ctx, catalog.Normalize(ticker))
	if err != nil {
		return nil, err
	}

	gross := amount.Mul(coin.CurrentPrice)
	fee := gross.Mul(l.feeRate)
	proceeds := gross.Sub(fee)

	removedCost, err := l.store.ApplySell(ctx, userID, coin.Ticker, amount, proceeds)
	if err != nil {
		return nil, err
	}
	newBalance, err := l.balances.AdjustBalance(ctx, userID, proceeds)
	if err != nil {
		return nil, fmt.Errorf("sell applied but credit failed: %w", err)
	}

	l.record(ctx, userID, coin.Ticker, model.TxSell, amount, coin.CurrentPrice, proceeds, fee)

	return &TradeResult{
		Ticker:     coin.Ticker,
		Type:       model.TxSell,
		Amount:     amount,
		Price:      coin.CurrentPrice,
		Fee:        fee,
		Proceeds:   proceeds,
		RealizedPL: proceeds.Sub(removedCost),
		NewBalance: newBalance,
	}, nil
}

// SellAll liquidates every position in the portfolio at current prices and
// returns the per-ticker results. Positions are processed in ticker order;
// a failure stops the sweep and reports what already sold.
func (l *Ledger) SellAll(ctx context.Context, userID string) ([]TradeResult, error) {
	p, err := l.store.GetPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(p.Holdings) == 0 {
		return nil, ErrNothingToSell
	}

	tickers := make([]string, 0, len(p.Holdings))
	for t := range p.Holdings {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	results := make([]TradeResult, 0, len(tickers))
	for _, t := range tickers {
		res, err := l.Sell(ctx, userID, t, p.Holdings[t])
		if err != nil {
			return results, fmt.Errorf("sell-all stopped at %s: %w", t, err)
		}
		results = append(results, *res)
	}
	return results, nil
}

// Valuation values the portfolio at current prices.
func (l *Ledger) Valuation(ctx context.Context, userID string) (*Valuation, error) {
	p, err := l.store.GetPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	bal, err := l.balances.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	v := &Valuation{
		UserID:        userID,
		Balance:       bal,
		TotalInvested: p.TotalInvested,
		Holdings:      make([]Holding, 0, len(p.Holdings)),
	}

	tickers := make([]string, 0, len(p.Holdings))
	for t := range p.Holdings {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	for _, t := range tickers {
		coin, err := l.store.GetCoin(ctx, t)
		if err != nil {
			return nil, err
		}
		amount := p.Holdings[t]
		cost := p.CostBasis[t]
		value := amount.Mul(coin.CurrentPrice)

		h := Holding{
			Ticker:       t,
			Amount:       amount,
			CostBasis:    cost,
			CurrentPrice: coin.CurrentPrice,
			CurrentValue: value,
			UnrealizedPL: value.Sub(cost),
		}
		if amount.IsPositive() {
			h.AvgUnitCost = cost.Div(amount)
		}
		v.Holdings = append(v.Holdings, h)
		v.CurrentValue = v.CurrentValue.Add(value)
	}

	v.UnrealizedPL = v.CurrentValue.Sub(p.TotalInvested)
	v.AllTimePL = p.AllTimeProfitLoss.Add(v.UnrealizedPL)
	return v, nil
}

// Leaderboard ranks traded portfolios by current holdings value plus
// all-time realized profit.
func (l *Ledger) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	portfolios, err := l.store.ListTradedPortfolios(ctx, 0)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal)
	entries := make([]LeaderboardEntry, 0, len(portfolios))
	for i := range portfolios {
		p := &portfolios[i]
		value := decimal.Zero
		for t, amount := range p.Holdings {
			price, ok := prices[t]
			if !ok {
				coin, err := l.store.GetCoin(ctx, t)
				if err != nil {
					return nil, err
				}
				price = coin.CurrentPrice
				prices[t] = price
			}
			value = value.Add(amount.Mul(price))
		}
		entries = append(entries, LeaderboardEntry{
			UserID:       p.UserID,
			CurrentValue: value,
			AllTimePL:    p.AllTimeProfitLoss.Add(value.Sub(p.TotalInvested)),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CurrentValue.GreaterThan(entries[j].CurrentValue)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// record appends to the immutable transaction log. Log failures are not
// fatal to the trade itself; the store logs them.
func (l *Ledger) record(ctx context.Context, userID, ticker string, typ model.TransactionType, amount, price, total, fee decimal.Decimal) {
	metrics.TradesTotal.WithLabelValues(string(typ)).Inc()
	_ = l.store.InsertTransaction(ctx, &model.Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Ticker:    ticker,
		Type:      typ,
		Amount:    amount,
		Price:     price,
		TotalCost: total,
		Fee:       fee,
		Timestamp: time.Now().UTC(),
	})
}
