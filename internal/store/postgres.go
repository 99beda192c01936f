package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gamby/crypto-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Portfolio mutations run inside transactions with row locks; trigger status
// transitions are conditional single-statement updates.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS coins (
			ticker           TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			current_price    NUMERIC NOT NULL,
			starting_price   NUMERIC NOT NULL,
			trend            DOUBLE PRECISION NOT NULL,
			daily_volatility DOUBLE PRECISION NOT NULL,
			last_updated     TIMESTAMPTZ NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS price_points (
			ticker    TEXT NOT NULL,
			price     NUMERIC NOT NULL,
			ts        TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS price_points_ticker_ts ON price_points (ticker, ts);
		CREATE TABLE IF NOT EXISTS portfolios (
			user_id              TEXT PRIMARY KEY,
			total_invested       NUMERIC NOT NULL DEFAULT 0,
			all_time_invested    NUMERIC NOT NULL DEFAULT 0,
			all_time_returned    NUMERIC NOT NULL DEFAULT 0,
			all_time_profit_loss NUMERIC NOT NULL DEFAULT 0,
			created_at           TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS positions (
			user_id    TEXT NOT NULL,
			ticker     TEXT NOT NULL,
			amount     NUMERIC NOT NULL,
			cost_basis NUMERIC NOT NULL,
			PRIMARY KEY (user_id, ticker)
		);
		CREATE TABLE IF NOT EXISTS transactions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			ticker     TEXT NOT NULL,
			type       TEXT NOT NULL,
			amount     NUMERIC NOT NULL,
			price      NUMERIC NOT NULL,
			total_cost NUMERIC NOT NULL,
			fee        NUMERIC NOT NULL,
			ts         TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS transactions_user_ts ON transactions (user_id, ts DESC);
		CREATE TABLE IF NOT EXISTS trigger_orders (
			id                  TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL,
			ticker              TEXT NOT NULL,
			amount              NUMERIC NOT NULL,
			target_gain_percent DOUBLE PRECISION NOT NULL,
			avg_purchase_price  NUMERIC NOT NULL,
			trigger_price       NUMERIC NOT NULL,
			status              TEXT NOT NULL,
			created_at          TIMESTAMPTZ NOT NULL,
			executed_at         TIMESTAMPTZ,
			execution_price     NUMERIC NOT NULL DEFAULT 0,
			failure_reason      TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS trigger_orders_ticker_status ON trigger_orders (ticker, status);
		CREATE TABLE IF NOT EXISTS market_events (
			id             TEXT PRIMARY KEY,
			message        TEXT NOT NULL,
			impact         DOUBLE PRECISION NOT NULL,
			affected_coins TEXT[] NOT NULL,
			scope          TEXT NOT NULL,
			ts             TIMESTAMPTZ NOT NULL
		)`)
	return err
}

// --- Coins ---

func (s *PostgresStore) UpsertCoin(ctx context.Context, c *model.Coin) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO coins (ticker, name, description, current_price, starting_price, trend, daily_volatility, last_updated, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8, $9)
		 ON CONFLICT (ticker) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			current_price = EXCLUDED.current_price,
			starting_price = EXCLUDED.starting_price,
			trend = EXCLUDED.trend,
			daily_volatility = EXCLUDED.daily_volatility,
			last_updated = EXCLUDED.last_updated`,
		c.Ticker, c.Name, c.Description,
		c.CurrentPrice.String(), c.StartingPrice.String(),
		c.Trend, c.DailyVolatility, c.LastUpdated, c.CreatedAt,
	)
	return err
}

const coinColumns = `ticker, name, description,
	current_price::TEXT, starting_price::TEXT,
	trend, daily_volatility, last_updated, created_at`

func scanCoin(row pgx.Row) (*model.Coin, error) {
	var c model.Coin
	var cur, start string
	if err := row.Scan(&c.Ticker, &c.Name, &c.Description,
		&cur, &start, &c.Trend, &c.DailyVolatility,
		&c.LastUpdated, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.CurrentPrice, _ = decimal.NewFromString(cur)
	c.StartingPrice, _ = decimal.NewFromString(start)
	return &c, nil
}

func (s *PostgresStore) GetCoin(ctx context.Context, ticker string) (*model.Coin, error) {
	c, err := scanCoin(s.pool.QueryRow(ctx,
		`SELECT `+coinColumns+` FROM coins WHERE ticker = $1`, ticker))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("coin %s: %w", ticker, ErrNotFound)
		}
		return nil, fmt.Errorf("get coin %s: %w", ticker, err)
	}
	return c, nil
}

func (s *PostgresStore) ListCoins(ctx context.Context) ([]model.Coin, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+coinColumns+` FROM coins ORDER BY created_at, ticker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coins []model.Coin
	for rows.Next() {
		c, err := scanCoin(rows)
		if err != nil {
			return nil, err
		}
		coins = append(coins, *c)
	}
	return coins, rows.Err()
}

func (s *PostgresStore) CommitPrice(ctx context.Context, ticker string, price decimal.Decimal, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE coins SET current_price = $2::NUMERIC, last_updated = $3 WHERE ticker = $1`,
		ticker, price.String(), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("coin %s: %w", ticker, ErrNotFound)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO price_points (ticker, price, ts) VALUES ($1, $2::NUMERIC, $3)`,
		ticker, price.String(), at); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) UpdateCoinVolatility(ctx context.Context, ticker string, volatility float64, newTrend *float64) error {
	var err error
	if newTrend != nil {
		_, err = s.pool.Exec(ctx,
			`UPDATE coins SET daily_volatility = $2, trend = $3 WHERE ticker = $1`,
			ticker, volatility, *newTrend)
	} else {
		_, err = s.pool.Exec(ctx,
			`UPDATE coins SET daily_volatility = $2 WHERE ticker = $1`,
			ticker, volatility)
	}
	return err
}

func (s *PostgresStore) GetPriceHistory(ctx context.Context, ticker string, since time.Time) ([]model.PricePoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ticker, price::TEXT, ts FROM price_points
		 WHERE ticker = $1 AND ts >= $2 ORDER BY ts`, ticker, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var price string
		if err := rows.Scan(&p.Ticker, &price, &p.Timestamp); err != nil {
			return nil, err
		}
		p.Price, _ = decimal.NewFromString(price)
		points = append(points, p)
	}
	return points, rows.Err()
}

// --- Portfolios ---

func (s *PostgresStore) GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO portfolios (user_id, created_at) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`, userID, time.Now().UTC()); err != nil {
		return nil, err
	}

	p := &model.Portfolio{
		UserID:    userID,
		Holdings:  make(map[string]decimal.Decimal),
		CostBasis: make(map[string]decimal.Decimal),
	}

	var inv, ainv, aret, apl string
	err := s.pool.QueryRow(ctx,
		`SELECT total_invested::TEXT, all_time_invested::TEXT,
		        all_time_returned::TEXT, all_time_profit_loss::TEXT, created_at
		 FROM portfolios WHERE user_id = $1`, userID).
		Scan(&inv, &ainv, &aret, &apl, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get portfolio %s: %w", userID, err)
	}
	p.TotalInvested, _ = decimal.NewFromString(inv)
	p.AllTimeInvested, _ = decimal.NewFromString(ainv)
	p.AllTimeReturned, _ = decimal.NewFromString(aret)
	p.AllTimeProfitLoss, _ = decimal.NewFromString(apl)

	rows, err := s.pool.Query(ctx,
		`SELECT ticker, amount::TEXT, cost_basis::TEXT FROM positions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ticker, amount, cost string
		if err := rows.Scan(&ticker, &amount, &cost); err != nil {
			return nil, err
		}
		p.Holdings[ticker], _ = decimal.NewFromString(amount)
		p.CostBasis[ticker], _ = decimal.NewFromString(cost)
	}
	return p, rows.Err()
}

func (s *PostgresStore) ApplyBuy(ctx context.Context, userID, ticker string, amount, spend decimal.Decimal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO portfolios (user_id, created_at) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`, userID, time.Now().UTC()); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO positions (user_id, ticker, amount, cost_basis)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC)
		 ON CONFLICT (user_id, ticker) DO UPDATE SET
			amount = positions.amount + EXCLUDED.amount,
			cost_basis = positions.cost_basis + EXCLUDED.cost_basis`,
		userID, ticker, amount.String(), spend.String()); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE portfolios SET
			total_invested = total_invested + $2::NUMERIC,
			all_time_invested = all_time_invested + $2::NUMERIC,
			all_time_profit_loss = all_time_returned - (all_time_invested + $2::NUMERIC)
		 WHERE user_id = $1`,
		userID, spend.String()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ApplySell(ctx context.Context, userID, ticker string, amount, proceeds decimal.Decimal) (decimal.Decimal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	// Row lock serializes same-user-same-ticker sells (manual sell racing
	// a trigger execution).
	var heldS, costS string
	err = tx.QueryRow(ctx,
		`SELECT amount::TEXT, cost_basis::TEXT FROM positions
		 WHERE user_id = $1 AND ticker = $2 FOR UPDATE`, userID, ticker).
		Scan(&heldS, &costS)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("sell %s %s of none held: %w", amount, ticker, ErrInsufficientHoldings)
	}
	if err != nil {
		return decimal.Zero, err
	}

	held, _ := decimal.NewFromString(heldS)
	cost, _ := decimal.NewFromString(costS)
	if held.LessThan(amount) || amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("sell %s %s of %s held: %w", amount, ticker, held, ErrInsufficientHoldings)
	}

	sellRatio := amount.Div(held)
	removedCost := cost.Mul(sellRatio)
	newHeld := held.Sub(amount)
	newCost := cost.Sub(removedCost)

	if newHeld.LessThanOrEqual(HoldingEpsilon) {
		removedCost = removedCost.Add(newCost)
		if _, err := tx.Exec(ctx,
			`DELETE FROM positions WHERE user_id = $1 AND ticker = $2`, userID, ticker); err != nil {
			return decimal.Zero, err
		}
	} else if _, err := tx.Exec(ctx,
		`UPDATE positions SET amount = $3::NUMERIC, cost_basis = $4::NUMERIC
		 WHERE user_id = $1 AND ticker = $2`,
		userID, ticker, newHeld.String(), newCost.String()); err != nil {
		return decimal.Zero, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE portfolios SET
			total_invested = total_invested - $2::NUMERIC,
			all_time_returned = all_time_returned + $3::NUMERIC,
			all_time_profit_loss = (all_time_returned + $3::NUMERIC) - all_time_invested
		 WHERE user_id = $1`,
		userID, removedCost.String(), proceeds.String()); err != nil {
		return decimal.Zero, err
	}
	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, err
	}
	return removedCost, nil
}

func (s *PostgresStore) ListTradedPortfolios(ctx context.Context, limit int) ([]model.Portfolio, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM portfolios WHERE all_time_invested > 0
		 ORDER BY all_time_profit_loss DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	portfolios := make([]model.Portfolio, 0, len(userIDs))
	for _, id := range userIDs {
		p, err := s.GetPortfolio(ctx, id)
		if err != nil {
			return nil, err
		}
		portfolios = append(portfolios, *p)
	}
	return portfolios, nil
}

// --- Transactions ---

func (s *PostgresStore) InsertTransaction(ctx context.Context, t *model.Transaction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (id, user_id, ticker, type, amount, price, total_cost, fee, ts)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		t.ID, t.UserID, t.Ticker, string(t.Type),
		t.Amount.String(), t.Price.String(), t.TotalCost.String(), t.Fee.String(),
		t.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetUserTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, ticker, type, amount::TEXT, price::TEXT, total_cost::TEXT, fee::TEXT, ts
		 FROM transactions WHERE user_id = $1 ORDER BY ts DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var typ, amount, price, cost, fee string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Ticker, &typ,
			&amount, &price, &cost, &fee, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Type = model.TransactionType(typ)
		t.Amount, _ = decimal.NewFromString(amount)
		t.Price, _ = decimal.NewFromString(price)
		t.TotalCost, _ = decimal.NewFromString(cost)
		t.Fee, _ = decimal.NewFromString(fee)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// --- Trigger orders ---

const orderColumns = `id, user_id, ticker, amount::TEXT, target_gain_percent,
	avg_purchase_price::TEXT, trigger_price::TEXT, status, created_at,
	executed_at, execution_price::TEXT, failure_reason`

func scanTriggerOrder(row pgx.Row) (*model.TriggerOrder, error) {
	var o model.TriggerOrder
	var amount, avg, trig, exec, status string
	if err := row.Scan(&o.ID, &o.UserID, &o.Ticker, &amount, &o.TargetGainPercent,
		&avg, &trig, &status, &o.CreatedAt,
		&o.ExecutedAt, &exec, &o.FailureReason); err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	o.Amount, _ = decimal.NewFromString(amount)
	o.AvgPurchasePrice, _ = decimal.NewFromString(avg)
	o.TriggerPrice, _ = decimal.NewFromString(trig)
	o.ExecutionPrice, _ = decimal.NewFromString(exec)
	return &o, nil
}

func (s *PostgresStore) InsertTriggerOrder(ctx context.Context, o *model.TriggerOrder) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trigger_orders (id, user_id, ticker, amount, target_gain_percent,
			avg_purchase_price, trigger_price, status, created_at, executed_at,
			execution_price, failure_reason)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6::NUMERIC, $7::NUMERIC, $8, $9, $10, $11::NUMERIC, $12)`,
		o.ID, o.UserID, o.Ticker, o.Amount.String(), o.TargetGainPercent,
		o.AvgPurchasePrice.String(), o.TriggerPrice.String(), string(o.Status),
		o.CreatedAt, o.ExecutedAt, o.ExecutionPrice.String(), o.FailureReason,
	)
	return err
}

func (s *PostgresStore) GetTriggerOrder(ctx context.Context, id string) (*model.TriggerOrder, error) {
	o, err := scanTriggerOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM trigger_orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("trigger order %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return o, nil
}

func (s *PostgresStore) ListUserTriggerOrders(ctx context.Context, userID string, status model.OrderStatus) ([]model.TriggerOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM trigger_orders
		 WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC`,
		userID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTriggerOrders(rows)
}

func (s *PostgresStore) ListMaturedTriggerOrders(ctx context.Context, ticker string, price decimal.Decimal) ([]model.TriggerOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM trigger_orders
		 WHERE ticker = $1 AND status = $2 AND trigger_price <= $3::NUMERIC
		 ORDER BY created_at`,
		ticker, string(model.OrderActive), price.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTriggerOrders(rows)
}

func collectTriggerOrders(rows pgx.Rows) ([]model.TriggerOrder, error) {
	var orders []model.TriggerOrder
	for rows.Next() {
		o, err := scanTriggerOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) ClaimTriggerOrder(ctx context.Context, id string, price decimal.Decimal, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trigger_orders
		 SET status = $2, execution_price = $3::NUMERIC, executed_at = $4
		 WHERE id = $1 AND status = $5`,
		id, string(model.OrderExecuted), price.String(), at, string(model.OrderActive))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) CancelTriggerOrder(ctx context.Context, id, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trigger_orders SET status = $3
		 WHERE id = $1 AND user_id = $2 AND status = $4`,
		id, userID, string(model.OrderCancelled), string(model.OrderActive))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) FailTriggerOrder(ctx context.Context, id, reason string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE trigger_orders
		 SET status = $2, failure_reason = $3, executed_at = NULL, execution_price = 0
		 WHERE id = $1`,
		id, string(model.OrderFailed), reason)
	return err
}

func (s *PostgresStore) SummarizeActiveTriggers(ctx context.Context) ([]TriggerSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ticker, COUNT(*), SUM(amount)::TEXT, AVG(trigger_price)::TEXT
		 FROM trigger_orders WHERE status = $1
		 GROUP BY ticker ORDER BY ticker`, string(model.OrderActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TriggerSummary
	for rows.Next() {
		var sum TriggerSummary
		var total, avg string
		if err := rows.Scan(&sum.Ticker, &sum.Count, &total, &avg); err != nil {
			return nil, err
		}
		sum.TotalAmount, _ = decimal.NewFromString(total)
		sum.AvgTriggerPrice, _ = decimal.NewFromString(avg)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PruneTriggerOrders(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trigger_orders
		 WHERE status != $1 AND created_at < $2`,
		string(model.OrderActive), cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- Market events ---

func (s *PostgresStore) InsertMarketEvent(ctx context.Context, e *model.MarketEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO market_events (id, message, impact, affected_coins, scope, ts)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Message, e.Impact, e.AffectedCoins, string(e.Scope), e.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetRecentEvents(ctx context.Context, since time.Time) ([]model.MarketEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, message, impact, affected_coins, scope, ts
		 FROM market_events WHERE ts >= $1 ORDER BY ts DESC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.MarketEvent
	for rows.Next() {
		var e model.MarketEvent
		var scope string
		if err := rows.Scan(&e.ID, &e.Message, &e.Impact, &e.AffectedCoins, &scope, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Scope = model.EventScope(scope)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Reset ---

func (s *PostgresStore) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`TRUNCATE coins, price_points, portfolios, positions, transactions, trigger_orders, market_events`)
	return err
}
