package balance

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestMemoryLedgerSeedsStartingBalance(t *testing.T) {
	l := NewMemoryLedger(d(1000))

	got, err := l.GetBalance(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !got.Equal(d(1000)) {
		t.Errorf("balance = %s, want 1000", got)
	}
}

func TestMemoryLedgerAdjust(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(d(1000))

	got, err := l.AdjustBalance(ctx, "u1", d(-100))
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if !got.Equal(d(900)) {
		t.Errorf("after debit = %s, want 900", got)
	}

	got, err = l.AdjustBalance(ctx, "u1", d(50))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if !got.Equal(d(950)) {
		t.Errorf("after credit = %s, want 950", got)
	}
}

func TestMemoryLedgerRejectsOverdraft(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(d(100))

	_, err := l.AdjustBalance(ctx, "u1", d(-100.01))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	// The failed debit must not touch the balance.
	got, _ := l.GetBalance(ctx, "u1")
	if !got.Equal(d(100)) {
		t.Errorf("balance after failed debit = %s, want 100", got)
	}

	// Draining to exactly zero is allowed.
	got, err = l.AdjustBalance(ctx, "u1", d(-100))
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("balance = %s, want 0", got)
	}
}

func TestMemoryLedgerConcurrentDebits(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(d(100))

	// 100 racers each try to take 10; exactly 10 can succeed.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.AdjustBalance(ctx, "u1", d(-10)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("successful debits = %d, want 10", succeeded)
	}
	got, _ := l.GetBalance(ctx, "u1")
	if !got.IsZero() {
		t.Errorf("final balance = %s, want 0", got)
	}
}
