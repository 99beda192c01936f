package trigger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gamby/crypto-engine/internal/balance"
	"github.com/gamby/crypto-engine/internal/model"
	"github.com/gamby/crypto-engine/internal/portfolio"
	"github.com/gamby/crypto-engine/internal/store"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

type fixture struct {
	store    *store.MemoryStore
	balances *balance.MemoryLedger
	trades   *portfolio.Ledger
	triggers *Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	bl := balance.NewMemoryLedger(d(1000))
	trades := portfolio.NewLedger(st, bl, 0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, st.UpsertCoin(context.Background(), &model.Coin{
		Ticker:       "MEME",
		Name:         "MemeToken",
		CurrentPrice: d(5),
		CreatedAt:    time.Now().UTC(),
	}))
	return &fixture{
		store:    st,
		balances: bl,
		trades:   trades,
		triggers: NewLedger(st, trades, logger),
	}
}

func TestCreateComputesTriggerPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.trades.Buy(ctx, "u1", "MEME", d(100)) // 20 coins at avg cost 5
	require.NoError(t, err)

	order, err := f.triggers.Create(ctx, "u1", "meme", d(20), 25)
	require.NoError(t, err)

	require.True(t, order.AvgPurchasePrice.Equal(d(5)), "avg = %s", order.AvgPurchasePrice)
	require.True(t, order.TriggerPrice.Equal(d(6.25)), "trigger = %s", order.TriggerPrice)
	require.Equal(t, model.OrderActive, order.Status)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.triggers.Create(ctx, "u1", "MEME", d(0), 25)
	require.ErrorIs(t, err, portfolio.ErrNonPositiveAmount)

	_, err = f.triggers.Create(ctx, "u1", "MEME", d(10), 0)
	require.ErrorIs(t, err, ErrNonPositiveGain)

	// Holds nothing yet.
	_, err = f.triggers.Create(ctx, "u1", "MEME", d(10), 25)
	require.ErrorIs(t, err, ErrInsufficientHoldings)
}

func TestOnPriceUpdateExecutesAtTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.trades.Buy(ctx, "u1", "MEME", d(100))
	require.NoError(t, err)
	order, err := f.triggers.Create(ctx, "u1", "MEME", d(20), 25)
	require.NoError(t, err)

	// Below the target nothing fires.
	require.NoError(t, f.store.CommitPrice(ctx, "MEME", d(6.20), time.Now().UTC()))
	execs, err := f.triggers.OnPriceUpdate(ctx, "MEME", d(6.20))
	require.NoError(t, err)
	require.Empty(t, execs)

	// At 6.30 the order executes at 6.30, not at the 6.25 target.
	require.NoError(t, f.store.CommitPrice(ctx, "MEME", d(6.30), time.Now().UTC()))
	execs, err = f.triggers.OnPriceUpdate(ctx, "MEME", d(6.30))
	require.NoError(t, err)
	require.Len(t, execs, 1)

	exec := execs[0]
	require.Equal(t, model.OrderExecuted, exec.Order.Status)
	require.True(t, exec.Order.ExecutionPrice.Equal(d(6.30)), "exec price = %s", exec.Order.ExecutionPrice)
	require.NotNil(t, exec.Trade)
	require.True(t, exec.Trade.Proceeds.Equal(d(126)), "proceeds = %s", exec.Trade.Proceeds)

	// Proceeds credited: 1000 - 100 + 126.
	bal, err := f.balances.GetBalance(ctx, "u1")
	require.NoError(t, err)
	require.True(t, bal.Equal(d(1026)), "balance = %s", bal)

	stored, err := f.store.GetTriggerOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderExecuted, stored.Status)
}

func TestOnPriceUpdateAtMostOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.trades.Buy(ctx, "u1", "MEME", d(100))
	require.NoError(t, err)
	_, err = f.triggers.Create(ctx, "u1", "MEME", d(20), 25)
	require.NoError(t, err)
	require.NoError(t, f.store.CommitPrice(ctx, "MEME", d(6.30), time.Now().UTC()))

	const racers = 10
	var wg sync.WaitGroup
	results := make(chan int, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			execs, err := f.triggers.OnPriceUpdate(ctx, "MEME", d(6.30))
			if err != nil {
				t.Errorf("evaluate: %v", err)
				return
			}
			results <- len(execs)
		}()
	}
	wg.Wait()
	close(results)

	total := 0
	for n := range results {
		total += n
	}
	require.Equal(t, 1, total, "order fired %d times", total)
}

func TestOnPriceUpdateFailsWhenHoldingsGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.trades.Buy(ctx, "u1", "MEME", d(100))
	require.NoError(t, err)
	order, err := f.triggers.Create(ctx, "u1", "MEME", d(20), 25)
	require.NoError(t, err)

	// The user sells manually; the standing order is now starved.
	_, err = f.trades.Sell(ctx, "u1", "MEME", d(20))
	require.NoError(t, err)

	require.NoError(t, f.store.CommitPrice(ctx, "MEME", d(6.30), time.Now().UTC()))
	execs, err := f.triggers.OnPriceUpdate(ctx, "MEME", d(6.30))
	require.NoError(t, err)
	require.Len(t, execs, 1)
	require.Equal(t, model.OrderFailed, execs[0].Order.Status)
	require.Nil(t, execs[0].Trade)

	stored, err := f.store.GetTriggerOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderFailed, stored.Status)
	require.NotEmpty(t, stored.FailureReason)

	// Failed is terminal: a later tick must not fire it again.
	execs, err = f.triggers.OnPriceUpdate(ctx, "MEME", d(7))
	require.NoError(t, err)
	require.Empty(t, execs)
}

func TestCancelOnlyWhileActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.trades.Buy(ctx, "u1", "MEME", d(100))
	require.NoError(t, err)
	order, err := f.triggers.Create(ctx, "u1", "MEME", d(20), 25)
	require.NoError(t, err)

	require.NoError(t, f.triggers.Cancel(ctx, "u1", order.ID))
	require.ErrorIs(t, f.triggers.Cancel(ctx, "u1", order.ID), ErrNotCancellable)

	// Cancelled orders never fire.
	require.NoError(t, f.store.CommitPrice(ctx, "MEME", d(100), time.Now().UTC()))
	execs, err := f.triggers.OnPriceUpdate(ctx, "MEME", d(100))
	require.NoError(t, err)
	require.Empty(t, execs)

	active, err := f.triggers.ListActive(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestSummarize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.trades.Buy(ctx, "u1", "MEME", d(100))
	require.NoError(t, err)
	_, err = f.triggers.Create(ctx, "u1", "MEME", d(10), 25)
	require.NoError(t, err)
	_, err = f.triggers.Create(ctx, "u1", "MEME", d(5), 50)
	require.NoError(t, err)

	summary, err := f.triggers.Summarize(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	require.Equal(t, "MEME", summary[0].Ticker)
	require.Equal(t, 2, summary[0].Count)
	require.True(t, summary[0].TotalAmount.Equal(d(15)), "total = %s", summary[0].TotalAmount)
}
