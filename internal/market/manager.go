// Package market runs the simulation: it owns the background loops, drives
// each price tick through engine, events, and balancer, commits the result,
// and evaluates trigger orders against the new price.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gamby/crypto-engine/internal/balancer"
	"github.com/gamby/crypto-engine/internal/catalog"
	"github.com/gamby/crypto-engine/internal/config"
	"github.com/gamby/crypto-engine/internal/engine"
	"github.com/gamby/crypto-engine/internal/metrics"
	"github.com/gamby/crypto-engine/internal/model"
	"github.com/gamby/crypto-engine/internal/store"
	"github.com/gamby/crypto-engine/internal/trigger"
)

const (
	// loopCooldown is how long a background loop sleeps after an
	// unexpected failure before resuming.
	loopCooldown = 30 * time.Second

	// retuneEvery is the tick cadence of the win-rate feedback loop.
	retuneEvery = 10

	// historyWindow caps the in-memory price window fed to the
	// indicator computation.
	historyWindow = 100

	// triggerRetention is how long terminal trigger orders are kept
	// before the housekeeping loop prunes them.
	triggerRetention = 30 * 24 * time.Hour
)

// Broadcaster pushes market happenings to connected clients. A nil
// Broadcaster disables pushes.
type Broadcaster interface {
	BroadcastPriceTick(coin *model.Coin, delta float64)
	BroadcastMarketEvent(event *model.MarketEvent)
	BroadcastTriggerExecution(exec *trigger.Execution)
}

// Status is the market status report.
type Status struct {
	Running      bool              `json:"running"`
	AdvancedMode bool              `json:"advanced_mode"`
	Phase        model.MarketPhase `json:"phase"`
	CoinCount    int               `json:"coin_count"`
	TickCount    int64             `json:"tick_count"`
	LastTick     time.Time         `json:"last_tick"`
	NextTick     time.Time         `json:"next_tick"`
}

// Manager wires the simulation together and drives it.
type Manager struct {
	cfg      *config.Config
	store    store.Store
	engine   *engine.Engine
	events   *engine.Scheduler
	balancer *balancer.Balancer
	triggers *trigger.Ledger
	hub      Broadcaster
	logger   *slog.Logger
	rng      *rand.Rand

	mu        sync.Mutex
	running   bool
	tickCount int64
	lastTick  time.Time
	nextTick  time.Time
	histories map[string][]float64
}

// NewManager creates a Manager. The RNG schedules tick intervals and picks
// event seeds; engine and balancer carry their own.
func NewManager(
	cfg *config.Config,
	st store.Store,
	eng *engine.Engine,
	events *engine.Scheduler,
	bal *balancer.Balancer,
	triggers *trigger.Ledger,
	hub Broadcaster,
	rng *rand.Rand,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     st,
		engine:    eng,
		events:    events,
		balancer:  bal,
		triggers:  triggers,
		hub:       hub,
		logger:    logger,
		rng:       rng,
		histories: make(map[string][]float64),
	}
}

// InitializeMarket lists any catalog coin missing from the store at a
// freshly drawn starting price, trend, and volatility. Existing coins are
// left untouched, so restarts resume the market instead of rerolling it.
func (m *Manager) InitializeMarket(ctx context.Context) error {
	now := time.Now().UTC()
	for _, spec := range catalog.Coins {
		if _, err := m.store.GetCoin(ctx, spec.Ticker); err == nil {
			continue
		}

		price := decimal.NewFromFloat(m.engine.StartingPrice()).Round(engine.PricePrecision)
		coin := &model.Coin{
			Ticker:          spec.Ticker,
			Name:            spec.Name,
			Description:     spec.Description,
			CurrentPrice:    price,
			StartingPrice:   price,
			Trend:           m.engine.InitialTrend(),
			DailyVolatility: m.engine.InitialVolatility(),
			LastUpdated:     now,
			CreatedAt:       now,
		}
		if err := m.store.UpsertCoin(ctx, coin); err != nil {
			return fmt.Errorf("list %s: %w", spec.Ticker, err)
		}
		if err := m.store.CommitPrice(ctx, spec.Ticker, price, now); err != nil {
			return fmt.Errorf("seed price for %s: %w", spec.Ticker, err)
		}
		m.logger.Info("coin listed",
			"ticker", spec.Ticker,
			"price", price.String(),
			"volatility", coin.DailyVolatility)
	}
	return nil
}

// Run starts the tick, revolatilization, and housekeeping loops and blocks
// until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); m.tickLoop(ctx) }()
	go func() { defer wg.Done(); m.volatilityLoop(ctx) }()
	go func() { defer wg.Done(); m.housekeepingLoop(ctx) }()
	wg.Wait()
}

// tickLoop sleeps a random interval, sweeps all prices, repeats. A failed
// sweep logs and cools down rather than killing the loop.
func (m *Manager) tickLoop(ctx context.Context) {
	for {
		interval := m.nextInterval()
		m.mu.Lock()
		m.nextTick = time.Now().Add(interval)
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if err := m.UpdateAllPrices(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("price tick failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(loopCooldown):
			}
		}
	}
}

func (m *Manager) volatilityLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.VolatilityInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := m.Revolatilize(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("revolatilization failed", "error", err)
		}
	}
}

func (m *Manager) housekeepingLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		pruned, err := m.triggers.Prune(ctx, triggerRetention)
		if err != nil {
			m.logger.Error("trigger prune failed", "error", err)
			continue
		}
		if pruned > 0 {
			m.logger.Info("pruned trigger orders", "count", pruned)
		}
	}
}

// UpdateAllPrices runs one full tick sweep: at most one market event, then
// per coin the engine delta, the balancer pass, the commit, and trigger
// evaluation against the committed price.
func (m *Manager) UpdateAllPrices(ctx context.Context) error {
	started := time.Now()
	coins, err := m.store.ListCoins(ctx)
	if err != nil {
		return fmt.Errorf("list coins: %w", err)
	}
	if len(coins) == 0 {
		return nil
	}

	m.engine.UpdatePhase(coins)

	tickers := make([]string, len(coins))
	for i := range coins {
		tickers[i] = coins[i].Ticker
	}

	// One event roll per sweep, seeded with a random ticker.
	now := time.Now().UTC()
	event := m.events.Check(tickers[m.rng.Intn(len(tickers))], tickers, now)
	impacts := m.recordEvent(ctx, event)

	for i := range coins {
		if err := m.tickCoin(ctx, &coins[i], impacts[coins[i].Ticker], now); err != nil {
			m.logger.Error("coin tick failed", "ticker", coins[i].Ticker, "error", err)
		}
	}

	m.mu.Lock()
	m.tickCount++
	count := m.tickCount
	m.lastTick = now
	m.mu.Unlock()

	if count%retuneEvery == 0 {
		m.retune(ctx)
	}

	metrics.TicksTotal.Inc()
	metrics.TickDuration.Observe(time.Since(started).Seconds())
	return nil
}

// tickCoin computes, balances, commits, and settles one coin's tick.
func (m *Manager) tickCoin(ctx context.Context, coin *model.Coin, eventImpact float64, now time.Time) error {
	raw := m.engine.ComputeDelta(coin) + eventImpact
	res := m.balancer.Apply(raw)
	for _, mech := range res.Mechanisms {
		metrics.BalancerMechanismsTotal.WithLabelValues(mech).Inc()
	}

	newPrice := CommitPrice(coin.CurrentPrice, res.FinalDelta)
	if err := m.store.CommitPrice(ctx, coin.Ticker, newPrice, now); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	coin.CurrentPrice = newPrice
	coin.LastUpdated = now

	m.observe(coin.Ticker, newPrice)

	// Commit happens-before trigger evaluation for the same coin.
	execs, err := m.triggers.OnPriceUpdate(ctx, coin.Ticker, newPrice)
	if err != nil {
		m.logger.Error("trigger evaluation failed", "ticker", coin.Ticker, "error", err)
	}
	for i := range execs {
		metrics.TriggerExecutionsTotal.WithLabelValues(string(execs[i].Order.Status)).Inc()
		if m.hub != nil {
			m.hub.BroadcastTriggerExecution(&execs[i])
		}
	}

	if m.hub != nil {
		m.hub.BroadcastPriceTick(coin, res.FinalDelta)
	}
	return nil
}

// recordEvent persists a fired event and returns its per-ticker impacts.
func (m *Manager) recordEvent(ctx context.Context, event *model.MarketEvent) map[string]float64 {
	if event == nil {
		return nil
	}
	if err := m.store.InsertMarketEvent(ctx, event); err != nil {
		m.logger.Error("event insert failed", "event_id", event.ID, "error", err)
	}
	metrics.MarketEventsTotal.WithLabelValues(string(event.Scope)).Inc()
	m.logger.Info("market event fired",
		"event_id", event.ID,
		"scope", event.Scope,
		"impact", event.Impact,
		"affected", event.AffectedCoins)
	if m.hub != nil {
		m.hub.BroadcastMarketEvent(event)
	}

	impacts := make(map[string]float64, len(event.AffectedCoins))
	for _, t := range event.AffectedCoins {
		impacts[t] = event.Impact
	}
	return impacts
}

// retune resamples the win rate and adjusts the balancer.
func (m *Manager) retune(ctx context.Context) {
	winRate, err := m.balancer.SampleWinRate(ctx, m.store)
	if err != nil {
		m.logger.Error("win rate sample failed", "error", err)
		return
	}
	intensity, changed := m.balancer.Retune(winRate)

	metrics.WinRate.Set(winRate)
	metrics.BalancerIntensity.Set(intensity)
	if changed {
		m.logger.Info("balancer retuned", "win_rate", winRate, "intensity", intensity)
	}
}

// Revolatilize redraws every coin's daily volatility and possibly nudges
// its trend.
func (m *Manager) Revolatilize(ctx context.Context) error {
	coins, err := m.store.ListCoins(ctx)
	if err != nil {
		return err
	}
	for i := range coins {
		vol, newTrend := m.engine.DrawDailyVolatility(coins[i].Trend)
		if err := m.store.UpdateCoinVolatility(ctx, coins[i].Ticker, vol, newTrend); err != nil {
			return fmt.Errorf("revolatilize %s: %w", coins[i].Ticker, err)
		}
	}
	m.logger.Info("daily revolatilization complete", "coins", len(coins))
	return nil
}

// ForceUpdate runs one tick sweep immediately. Administrative.
func (m *Manager) ForceUpdate(ctx context.Context) error {
	return m.UpdateAllPrices(ctx)
}

// TriggerManualEvent fires a specific event immediately and applies its
// impact to the affected coins. Administrative.
func (m *Manager) TriggerManualEvent(ctx context.Context, kind engine.EventKind, ticker string) (*model.MarketEvent, error) {
	coins, err := m.store.ListCoins(ctx)
	if err != nil {
		return nil, err
	}
	tickers := make([]string, len(coins))
	byTicker := make(map[string]*model.Coin, len(coins))
	for i := range coins {
		tickers[i] = coins[i].Ticker
		byTicker[coins[i].Ticker] = &coins[i]
	}
	if ticker == "" && len(tickers) > 0 {
		ticker = tickers[m.rng.Intn(len(tickers))]
	}
	if _, ok := byTicker[ticker]; !ok {
		return nil, catalog.ErrUnknownTicker
	}

	now := time.Now().UTC()
	event, err := m.events.Fire(kind, ticker, tickers, now)
	if err != nil {
		return nil, err
	}
	impacts := m.recordEvent(ctx, event)

	for t, impact := range impacts {
		coin := byTicker[t]
		if err := m.tickApplyImpact(ctx, coin, impact, now); err != nil {
			m.logger.Error("manual event apply failed", "ticker", t, "error", err)
		}
	}
	return event, nil
}

// tickApplyImpact commits an out-of-band price move (manual events).
func (m *Manager) tickApplyImpact(ctx context.Context, coin *model.Coin, impact float64, now time.Time) error {
	newPrice := CommitPrice(coin.CurrentPrice, impact)
	if err := m.store.CommitPrice(ctx, coin.Ticker, newPrice, now); err != nil {
		return err
	}
	coin.CurrentPrice = newPrice
	m.observe(coin.Ticker, newPrice)

	execs, err := m.triggers.OnPriceUpdate(ctx, coin.Ticker, newPrice)
	if err != nil {
		return err
	}
	for i := range execs {
		metrics.TriggerExecutionsTotal.WithLabelValues(string(execs[i].Order.Status)).Inc()
		if m.hub != nil {
			m.hub.BroadcastTriggerExecution(&execs[i])
		}
	}
	if m.hub != nil {
		m.hub.BroadcastPriceTick(coin, impact)
	}
	return nil
}

// Reset wipes all market and player state and relists the catalog.
// Administrative and destructive.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.store.Reset(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.histories = make(map[string][]float64)
	m.tickCount = 0
	m.mu.Unlock()

	m.logger.Warn("market reset")
	return m.InitializeMarket(ctx)
}

// Status reports the market state.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	coins, err := m.store.ListCoins(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return &Status{
		Running:      m.running,
		AdvancedMode: m.engine.Advanced(),
		Phase:        m.engine.Phase(),
		CoinCount:    len(coins),
		TickCount:    m.tickCount,
		LastTick:     m.lastTick,
		NextTick:     m.nextTick,
	}, nil
}

// observe appends to the rolling price window and refreshes indicators.
func (m *Manager) observe(ticker string, price decimal.Decimal) {
	p, _ := price.Float64()

	m.mu.Lock()
	h := append(m.histories[ticker], p)
	if len(h) > historyWindow {
		h = h[len(h)-historyWindow:]
	}
	m.histories[ticker] = h
	window := make([]float64, len(h))
	copy(window, h)
	m.mu.Unlock()

	m.engine.ObservePrice(ticker, window)
}

func (m *Manager) nextInterval() time.Duration {
	span := m.cfg.TickIntervalMax - m.cfg.TickIntervalMin
	if span <= 0 {
		return m.cfg.TickIntervalMin
	}
	return m.cfg.TickIntervalMin + time.Duration(m.rng.Int63n(int64(span)))
}

// CommitPrice applies a fractional delta to a price with the commit-side
// guards: a single tick moves the price by at most 100x either way, the
// result never goes below the floor, and it is rounded to fixed precision.
func CommitPrice(current decimal.Decimal, delta float64) decimal.Decimal {
	next := current.Mul(decimal.NewFromFloat(1 + delta))

	lo := current.Mul(decimal.NewFromFloat(0.01))
	hi := current.Mul(decimal.NewFromInt(100))
	if next.LessThan(lo) {
		next = lo
	}
	if next.GreaterThan(hi) {
		next = hi
	}
	if next.LessThan(engine.MinimumPriceDecimal) {
		next = engine.MinimumPriceDecimal
	}
	return next.Round(engine.PricePrecision)
}
