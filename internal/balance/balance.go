// Package balance is the boundary to the game's points ledger. The engine
// only needs two operations with atomic increment semantics; the real ledger
// lives with the game server, so this package ships a Redis-backed client
// and an in-memory implementation for tests and standalone runs.
package balance

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned when a debit would take a balance
// negative.
var ErrInsufficientFunds = errors.New("balance: insufficient funds")

// Ledger exposes the user points balance.
type Ledger interface {
	// GetBalance returns the user's current points balance.
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)

	// AdjustBalance atomically adds delta (negative = debit) and returns
	// the new balance. A debit below zero fails with ErrInsufficientFunds
	// and leaves the balance unchanged.
	AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error)
}

// MemoryLedger is an in-memory Ledger. Unseen users start with the
// configured starting balance.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	starting decimal.Decimal
}

// NewMemoryLedger creates a MemoryLedger with the given starting balance.
func NewMemoryLedger(starting decimal.Decimal) *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]decimal.Decimal),
		starting: starting,
	}
}

func (l *MemoryLedger) get(userID string) decimal.Decimal {
	b, ok := l.balances[userID]
	if !ok {
		b = l.starting
		l.balances[userID] = b
	}
	return b
}

func (l *MemoryLedger) GetBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(userID), nil
}

func (l *MemoryLedger) AdjustBalance(_ context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.get(userID).Add(delta)
	if next.IsNegative() {
		return l.balances[userID], ErrInsufficientFunds
	}
	l.balances[userID] = next
	return next, nil
}

// RedisLedger stores balances in Redis, using INCRBYFLOAT for the atomic
// increment. The negative-balance guard runs in a Lua script so check and
// adjust are one round trip and one atomic step.
type RedisLedger struct {
	rdb      *redis.Client
	starting decimal.Decimal
}

// NewRedisLedger creates a RedisLedger with the given starting balance for
// unseen users.
func NewRedisLedger(rdb *redis.Client, starting decimal.Decimal) *RedisLedger {
	return &RedisLedger{rdb: rdb, starting: starting}
}

var adjustScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
	cur = ARGV[2]
	redis.call('SET', KEYS[1], cur)
end
local next = tonumber(cur) + tonumber(ARGV[1])
if next < 0 then
	return redis.error_reply('insufficient')
end
return redis.call('INCRBYFLOAT', KEYS[1], ARGV[1])
`)

func balanceKey(userID string) string { return "balance:" + userID }

func (l *RedisLedger) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	val, err := l.rdb.Get(ctx, balanceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		// First sight of this user: seed the starting balance.
		if err := l.rdb.SetNX(ctx, balanceKey(userID), l.starting.String(), 0).Err(); err != nil {
			return decimal.Zero, err
		}
		return l.starting, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(val)
}

func (l *RedisLedger) AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	val, err := adjustScript.Run(ctx, l.rdb,
		[]string{balanceKey(userID)},
		delta.String(), l.starting.String()).Text()
	if err != nil {
		if err.Error() == "insufficient" {
			return decimal.Zero, ErrInsufficientFunds
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(val)
}
