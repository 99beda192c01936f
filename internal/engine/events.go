package engine

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gamby/crypto-engine/internal/model"
)

// EventKind identifies an entry in the event table.
type EventKind string

const (
	EventExchangeHack   EventKind = "exchange_hack"
	EventCelebrityTweet EventKind = "celebrity_tweet"
	EventRegulation     EventKind = "regulation"
	EventWhaleAlert     EventKind = "whale_alert"
	EventInstitutional  EventKind = "institutional"
	EventCongestion     EventKind = "network_congestion"
	EventPartnership    EventKind = "partnership"
	EventTokenBurn      EventKind = "token_burn"
	EventFUD            EventKind = "fud_campaign"
	EventBotMalfunction EventKind = "bot_malfunction"
)

type eventSpec struct {
	kind        EventKind
	message     string
	impact      float64
	probability float64
	scope       model.EventScope
}

// eventTable is the catalogue of random market events. Probabilities are
// checked once per tick sweep; impacts get a 0.8-1.2 jitter when fired.
var eventTable = []eventSpec{
	{EventExchangeHack, "🚨 Major exchange hacked! Markets in freefall!", -0.45, 0.010, model.ScopeAll},
	{EventCelebrityTweet, "🐦 Celebrity tweets about %s! To the moon!", 0.55, 0.040, model.ScopeSingle},
	{EventRegulation, "⚖️ Regulators announce crypto crackdown!", -0.35, 0.015, model.ScopeAll},
	{EventWhaleAlert, "🐋 Whale wallet loads up on %s!", 0.25, 0.050, model.ScopeSingle},
	{EventInstitutional, "🏦 Institutional money flows into %s!", 0.30, 0.030, model.ScopeSingle},
	{EventCongestion, "🌐 Network congestion hits several chains!", -0.25, 0.025, model.ScopeRandomMultiple},
	{EventPartnership, "🤝 %s announces a major partnership!", 0.40, 0.030, model.ScopeSingle},
	{EventTokenBurn, "🔥 Massive %s token burn announced!", 0.60, 0.020, model.ScopeSingle},
	{EventFUD, "😱 FUD campaign spreads across crypto twitter!", -0.30, 0.030, model.ScopeRandomMultiple},
	{EventBotMalfunction, "🤖 Trading bots malfunction, chaos ensues!", -0.50, 0.010, model.ScopeRandomMultiple},
}

// Scheduler fires random market events, at most one per cooldown window
// across the whole market. Safe for concurrent use: the tick loop and the
// admin endpoint both fire events.
type Scheduler struct {
	mu        sync.Mutex
	rng       *rand.Rand
	cooldown  time.Duration
	lastFired time.Time
}

// NewScheduler creates a Scheduler with the given global cooldown. The
// cooldown starts armed, so no random event can fire in the first window
// after startup.
func NewScheduler(rng *rand.Rand, cooldown time.Duration) *Scheduler {
	return &Scheduler{rng: rng, cooldown: cooldown, lastFired: time.Now().UTC()}
}

// Check rolls the event table once. It returns nil when the cooldown has
// not elapsed or no event fires. The ticker argument seeds single-coin
// scope and message formatting; allTickers feeds the wider scopes.
func (s *Scheduler) Check(ticker string, allTickers []string, now time.Time) *model.MarketEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastFired) < s.cooldown {
		return nil
	}

	for i := range eventTable {
		spec := &eventTable[i]
		if s.rng.Float64() >= spec.probability {
			continue
		}
		s.lastFired = now
		return s.build(spec, ticker, allTickers, now)
	}
	return nil
}

// Fire triggers a specific event immediately, bypassing probability rolls
// and the cooldown check. Used by the admin endpoint. It still arms the
// cooldown so a manual event suppresses random ones for a window.
func (s *Scheduler) Fire(kind EventKind, ticker string, allTickers []string, now time.Time) (*model.MarketEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range eventTable {
		spec := &eventTable[i]
		if spec.kind != kind {
			continue
		}
		s.lastFired = now
		return s.build(spec, ticker, allTickers, now), nil
	}
	return nil, fmt.Errorf("unknown event kind %q", kind)
}

// EventKinds lists the kinds accepted by Fire.
func EventKinds() []EventKind {
	kinds := make([]EventKind, len(eventTable))
	for i := range eventTable {
		kinds[i] = eventTable[i].kind
	}
	return kinds
}

// build resolves scope and jitter into a concrete event. Caller holds s.mu.
func (s *Scheduler) build(spec *eventSpec, ticker string, allTickers []string, now time.Time) *model.MarketEvent {
	jitter := 0.8 + s.rng.Float64()*0.4
	impact := spec.impact * jitter

	var affected []string
	switch spec.scope {
	case model.ScopeAll:
		affected = append(affected, allTickers...)
	case model.ScopeRandomMultiple:
		affected = s.pickRandom(allTickers)
	default:
		affected = []string{ticker}
	}

	message := spec.message
	if spec.scope == model.ScopeSingle {
		message = fmt.Sprintf(spec.message, ticker)
	}

	return &model.MarketEvent{
		ID:            uuid.NewString(),
		Message:       message,
		Impact:        impact,
		AffectedCoins: affected,
		Scope:         spec.scope,
		Timestamp:     now,
	}
}

// pickRandom draws 3-6 distinct tickers (or all of them when fewer exist).
func (s *Scheduler) pickRandom(allTickers []string) []string {
	n := 3 + s.rng.Intn(4)
	if n >= len(allTickers) {
		out := make([]string, len(allTickers))
		copy(out, allTickers)
		return out
	}
	idx := s.rng.Perm(len(allTickers))[:n]
	out := make([]string, 0, n)
	for _, i := range idx {
		out = append(out, allTickers[i])
	}
	return out
}
