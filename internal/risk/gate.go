package risk

import (
	"sync"
	"time"

	"pm-dip-bot/internal/config"

	"go.uber.org/zap"
)

// State holds the rolling risk counters. All times are wall-clock values
// supplied by the caller so the gate itself never reads a clock.
type State struct {
	ActivePositions     int
	DailyLossUSD        float64
	LastCycleEnd        time.Time
	OrdersLastHour      []time.Time
	ConsecutiveFailures int
	CircuitBreakerUntil time.Time
	Paused              bool
}

// Gate decides whether new trading activity is currently permitted. It is the
// sole owner of the RiskState; the strategy only ever calls through here.
type Gate struct {
	mu  sync.Mutex
	cfg config.RiskConfig
	st  State
	log *zap.Logger

	// onBreaker fires after the circuit breaker engages; onChange fires after
	// any durable counter moves. Both run outside the gate lock.
	onBreaker func(until time.Time)
	onChange  func(State)
}

func NewGate(cfg config.RiskConfig, log *zap.Logger) *Gate {
	return &Gate{cfg: cfg, log: log}
}

func (g *Gate) SetBreakerHook(fn func(until time.Time)) { g.onBreaker = fn }
func (g *Gate) SetChangeHook(fn func(State))            { g.onChange = fn }

// CanTrade evaluates the gate checks in precedence order; the first failing
// check blocks.
func (g *Gate) CanTrade(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.st.Paused {
		return false
	}
	if now.Before(g.st.CircuitBreakerUntil) {
		g.log.Warn("circuit breaker active", zap.Time("until", g.st.CircuitBreakerUntil))
		return false
	}
	if g.st.ActivePositions >= g.cfg.MaxActivePositions {
		return false
	}
	if g.st.DailyLossUSD >= g.cfg.DailyLossLimitUSD {
		g.log.Warn("daily loss limit reached", zap.Float64("daily_loss_usd", g.st.DailyLossUSD))
		return false
	}
	if !g.st.LastCycleEnd.IsZero() && now.Sub(g.st.LastCycleEnd) < g.cfg.Cooldown {
		return false
	}
	g.trimHourly(now)
	if len(g.st.OrdersLastHour) >= g.cfg.MaxOrdersPerHour {
		g.log.Warn("hourly order limit reached", zap.Int("orders_last_hour", len(g.st.OrdersLastHour)))
		return false
	}
	return true
}

func (g *Gate) RegisterOrder(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.st.OrdersLastHour = append(g.st.OrdersLastHour, now)
	g.trimHourly(now)
}

func (g *Gate) RegisterCycleStart() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.st.ActivePositions++
}

func (g *Gate) RegisterCycleEnd(now time.Time) {
	g.mu.Lock()
	if g.st.ActivePositions > 0 {
		g.st.ActivePositions--
	}
	g.st.LastCycleEnd = now
	snap := g.st
	g.mu.Unlock()
	g.notifyChange(snap)
}

// RegisterFailure bumps the consecutive-failure counter and engages the
// circuit breaker once it reaches the configured limit.
func (g *Gate) RegisterFailure(now time.Time) {
	g.mu.Lock()
	g.st.ConsecutiveFailures++
	engaged := false
	if g.st.ConsecutiveFailures >= g.cfg.CircuitBreakerFailures {
		g.st.CircuitBreakerUntil = now.Add(g.cfg.CircuitBreakerCooldown)
		engaged = true
	}
	until := g.st.CircuitBreakerUntil
	snap := g.st
	g.mu.Unlock()
	if engaged {
		g.log.Error("circuit breaker engaged", zap.Time("until", until))
		if g.onBreaker != nil {
			g.onBreaker(until)
		}
	}
	g.notifyChange(snap)
}

func (g *Gate) RegisterSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.st.ConsecutiveFailures = 0
}

// RecordPnL adds only the loss portion to the daily counter; profits never
// reduce it.
func (g *Gate) RecordPnL(pnlUSD float64) {
	g.mu.Lock()
	if loss := -pnlUSD; loss > 0 {
		g.st.DailyLossUSD += loss
	}
	snap := g.st
	g.mu.Unlock()
	g.notifyChange(snap)
}

// ResetDaily clears the daily-loss counter. The gate never does this on its
// own; the host calls it at UTC day boundaries.
func (g *Gate) ResetDaily(now time.Time) {
	g.mu.Lock()
	g.st.DailyLossUSD = 0
	snap := g.st
	g.mu.Unlock()
	g.log.Info("daily loss counter reset", zap.Time("at", now))
	g.notifyChange(snap)
}

func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.st.Paused = true
}

func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.st.Paused = false
}

func (g *Gate) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap := g.st
	snap.OrdersLastHour = append([]time.Time(nil), g.st.OrdersLastHour...)
	return snap
}

// Restore reinstates durable counters from a persisted snapshot. The
// in-memory ones (active positions, hourly orders) always start fresh.
func (g *Gate) Restore(snap State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.st.DailyLossUSD = snap.DailyLossUSD
	g.st.ConsecutiveFailures = snap.ConsecutiveFailures
	g.st.CircuitBreakerUntil = snap.CircuitBreakerUntil
}

func (g *Gate) trimHourly(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(g.st.OrdersLastHour) && g.st.OrdersLastHour[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		g.st.OrdersLastHour = append(g.st.OrdersLastHour[:0], g.st.OrdersLastHour[i:]...)
	}
}

func (g *Gate) notifyChange(snap State) {
	if g.onChange != nil {
		g.onChange(snap)
	}
}
