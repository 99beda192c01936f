package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gamby/crypto-engine/internal/model"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func seedCoin(t *testing.T, s *MemoryStore, ticker string, price float64) {
	t.Helper()
	err := s.UpsertCoin(context.Background(), &model.Coin{
		Ticker:       ticker,
		Name:         ticker,
		CurrentPrice: d(price),
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed coin: %v", err)
	}
}

func TestApplyBuySellCostBasisConservation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.ApplyBuy(ctx, "u1", "MEME", d(20), d(100)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	removed, err := s.ApplySell(ctx, "u1", "MEME", d(5), d(30))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !removed.Equal(d(25)) {
		t.Errorf("removed cost = %s, want 25", removed)
	}

	p, _ := s.GetPortfolio(ctx, "u1")
	if !p.Holdings["MEME"].Equal(d(15)) {
		t.Errorf("holdings = %s, want 15", p.Holdings["MEME"])
	}
	if !p.CostBasis["MEME"].Equal(d(75)) {
		t.Errorf("cost basis = %s, want 75", p.CostBasis["MEME"])
	}
	// Average unit cost unchanged by the sell.
	avg := p.CostBasis["MEME"].Div(p.Holdings["MEME"])
	if !avg.Equal(d(5)) {
		t.Errorf("avg unit cost = %s, want 5", avg)
	}
	// sum(cost_basis) == total_invested.
	if !p.TotalInvested.Equal(d(75)) {
		t.Errorf("total invested = %s, want 75", p.TotalInvested)
	}
	if !p.AllTimeReturned.Equal(d(30)) {
		t.Errorf("all time returned = %s, want 30", p.AllTimeReturned)
	}
	if !p.AllTimeProfitLoss.Equal(d(-70)) {
		t.Errorf("all time pl = %s, want -70", p.AllTimeProfitLoss)
	}
}

func TestApplySellInsufficientHoldings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.ApplyBuy(ctx, "u1", "MEME", d(10), d(50)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	_, err := s.ApplySell(ctx, "u1", "MEME", d(11), d(55))
	if !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("err = %v, want ErrInsufficientHoldings", err)
	}

	// Nothing mutated on failure.
	p, _ := s.GetPortfolio(ctx, "u1")
	if !p.Holdings["MEME"].Equal(d(10)) || !p.TotalInvested.Equal(d(50)) {
		t.Errorf("portfolio mutated on failed sell: %+v", p)
	}
}

func TestApplySellPrunesDust(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.ApplyBuy(ctx, "u1", "MEME", d(20), d(100)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	removed, err := s.ApplySell(ctx, "u1", "MEME", d(20), d(90))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !removed.Equal(d(100)) {
		t.Errorf("removed cost = %s, want 100", removed)
	}

	p, _ := s.GetPortfolio(ctx, "u1")
	if _, ok := p.Holdings["MEME"]; ok {
		t.Error("dust holding not pruned")
	}
	if _, ok := p.CostBasis["MEME"]; ok {
		t.Error("dust cost basis not pruned")
	}
	if !p.TotalInvested.IsZero() {
		t.Errorf("total invested = %s, want 0", p.TotalInvested)
	}
}

func TestClaimTriggerOrderAtMostOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	order := &model.TriggerOrder{
		ID:           "ord-1",
		UserID:       "u1",
		Ticker:       "MEME",
		Amount:       d(10),
		TriggerPrice: d(6.25),
		Status:       model.OrderActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.InsertTriggerOrder(ctx, order); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const claimers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimTriggerOrder(ctx, "ord-1", d(6.30), time.Now().UTC())
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("winners = %d, want exactly 1", won)
	}

	got, _ := s.GetTriggerOrder(ctx, "ord-1")
	if got.Status != model.OrderExecuted {
		t.Errorf("status = %s, want executed", got.Status)
	}
	if !got.ExecutionPrice.Equal(d(6.30)) {
		t.Errorf("execution price = %s, want 6.30", got.ExecutionPrice)
	}
}

func TestCancelTriggerOrderCAS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	order := &model.TriggerOrder{
		ID: "ord-1", UserID: "u1", Ticker: "MEME",
		Amount: d(10), TriggerPrice: d(6), Status: model.OrderActive,
		CreatedAt: time.Now().UTC(),
	}
	s.InsertTriggerOrder(ctx, order)

	// Wrong user cannot cancel.
	if ok, _ := s.CancelTriggerOrder(ctx, "ord-1", "u2"); ok {
		t.Error("wrong user cancelled order")
	}

	if ok, _ := s.CancelTriggerOrder(ctx, "ord-1", "u1"); !ok {
		t.Fatal("owner cancel failed")
	}
	// Cancelled orders cannot be claimed.
	if ok, _ := s.ClaimTriggerOrder(ctx, "ord-1", d(10), time.Now().UTC()); ok {
		t.Error("claimed a cancelled order")
	}
	// Or cancelled again.
	if ok, _ := s.CancelTriggerOrder(ctx, "ord-1", "u1"); ok {
		t.Error("cancelled twice")
	}
}

func TestListMaturedTriggerOrdersComparator(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.InsertTriggerOrder(ctx, &model.TriggerOrder{
		ID: "ord-1", UserID: "u1", Ticker: "MEME",
		Amount: d(10), TriggerPrice: d(6.25), Status: model.OrderActive,
		CreatedAt: time.Now().UTC(),
	})

	below, _ := s.ListMaturedTriggerOrders(ctx, "MEME", d(6.20))
	if len(below) != 0 {
		t.Errorf("matured below trigger = %d, want 0", len(below))
	}
	at, _ := s.ListMaturedTriggerOrders(ctx, "MEME", d(6.25))
	if len(at) != 1 {
		t.Errorf("matured at trigger = %d, want 1", len(at))
	}
	above, _ := s.ListMaturedTriggerOrders(ctx, "MEME", d(6.30))
	if len(above) != 1 {
		t.Errorf("matured above trigger = %d, want 1", len(above))
	}
}

func TestCommitPriceAppendsHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedCoin(t, s, "MEME", 5)

	t0 := time.Now().UTC()
	if err := s.CommitPrice(ctx, "MEME", d(5.5), t0); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.CommitPrice(ctx, "MEME", d(6.0), t0.Add(time.Minute)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	coin, _ := s.GetCoin(ctx, "MEME")
	if !coin.CurrentPrice.Equal(d(6.0)) {
		t.Errorf("current price = %s, want 6.0", coin.CurrentPrice)
	}

	points, _ := s.GetPriceHistory(ctx, "MEME", time.Time{})
	if len(points) != 2 {
		t.Fatalf("history rows = %d, want 2", len(points))
	}
	if !points[0].Price.Equal(d(5.5)) || !points[1].Price.Equal(d(6.0)) {
		t.Errorf("history out of order: %v then %v", points[0].Price, points[1].Price)
	}
}

func TestPruneTriggerOrders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	old := time.Now().UTC().Add(-48 * time.Hour)

	s.InsertTriggerOrder(ctx, &model.TriggerOrder{
		ID: "done", Ticker: "MEME", Status: model.OrderExecuted, CreatedAt: old,
	})
	s.InsertTriggerOrder(ctx, &model.TriggerOrder{
		ID: "live", Ticker: "MEME", Status: model.OrderActive, CreatedAt: old,
	})

	pruned, err := s.PruneTriggerOrders(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if _, err := s.GetTriggerOrder(ctx, "done"); !errors.Is(err, ErrNotFound) {
		t.Error("terminal order survived prune")
	}
	if _, err := s.GetTriggerOrder(ctx, "live"); err != nil {
		t.Error("active order was pruned")
	}
}
