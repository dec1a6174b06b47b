package strategy

import (
	"context"
	"math"
	"sync"
	"time"

	"pm-dip-bot/internal/config"
	"pm-dip-bot/internal/exec"
	"pm-dip-bot/internal/market"
	"pm-dip-bot/internal/metrics"
	"pm-dip-bot/internal/risk"

	"go.uber.org/zap"
)

// Hedge is the two-leg dip-hedge state machine. OnQuote and OnSignal are the
// only entry points; a single mutex serializes them so at most one leg
// submission is in flight at a time. All elapsed-time decisions derive from
// quote and signal timestamps, never from an internal clock.
type Hedge struct {
	mu sync.Mutex

	strat    config.StrategyConfig
	riskCfg  config.RiskConfig
	slipBps  float64
	requotes int

	engine  *exec.Engine
	gate    *risk.Gate
	journal Journal
	metrics *metrics.Metrics
	log     *zap.Logger
	newID   IDGen

	position *Position
	latest   map[market.Side]market.Quote
}

func New(cfg *config.Config, engine *exec.Engine, gate *risk.Gate, journal Journal, m *metrics.Metrics, log *zap.Logger) *Hedge {
	return &Hedge{
		strat:    cfg.Strategy,
		riskCfg:  cfg.Risk,
		slipBps:  cfg.Execution.SlippageBps,
		requotes: cfg.Execution.MaxRequotes,
		engine:   engine,
		gate:     gate,
		journal:  journal,
		metrics:  m,
		log:      log,
		newID:    NewClientOrderID,
		latest:   make(map[market.Side]market.Quote),
	}
}

// SetIDGen swaps the client-order-id generator, used by tests for
// deterministic ids.
func (h *Hedge) SetIDGen(gen IDGen) { h.newID = gen }

// HasPosition reports whether a hedge cycle is currently open.
func (h *Hedge) HasPosition() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position != nil
}

// OnQuote caches the latest quote for the side and, with a position open,
// re-evaluates the leg-2 exit conditions.
func (h *Hedge) OnQuote(ctx context.Context, q market.Quote) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest[q.Side] = q
	if h.position != nil {
		h.evaluateLeg2(ctx, q.Timestamp)
	}
}

// OnSignal attempts a leg-1 entry. Ignored while the gate blocks, while a
// position is open, or before the signaled side's feed is warm.
func (h *Hedge) OnSignal(ctx context.Context, sig market.SignalEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log.Info("movement signal",
		zap.String("side", string(sig.Side)),
		zap.Float64("move_pct", sig.MovePct),
		zap.Float64("entry_price", sig.EntryPrice),
	)
	if !h.gate.CanTrade(sig.Timestamp) {
		return
	}
	if h.position != nil {
		return
	}
	h.enterLeg1(ctx, sig)
}

func (h *Hedge) enterLeg1(ctx context.Context, sig market.SignalEvent) {
	quote, ok := h.latest[sig.Side]
	if !ok {
		return
	}
	size := h.sizeFor(quote.BestAsk)
	if size <= 0 {
		return
	}
	req := exec.Request{
		Side:          sig.Side,
		Price:         h.applySlippage(quote.BestAsk),
		Size:          size,
		ClientOrderID: h.newID("leg1"),
	}
	// Register before submission so a duplicate signal during the in-flight
	// attempt still counts toward the hourly limit.
	h.gate.RegisterOrder(sig.Timestamp)
	res, err := h.executeWithRequote(ctx, req, quote.BestAsk)
	if err != nil || res.Status != exec.StatusFilled {
		h.gate.RegisterFailure(sig.Timestamp)
		h.metrics.OrdersFailed.Inc()
		h.log.Warn("leg1 not filled", zap.String("status", string(res.Status)), zap.Error(err))
		return
	}
	h.gate.RegisterSuccess()
	h.gate.RegisterCycleStart()
	h.metrics.OrdersPlaced.Inc()
	price := res.AvgPrice
	if price == 0 {
		price = req.Price
	}
	h.position = &Position{
		Leg1Side:  sig.Side,
		Leg1Price: price,
		Leg1Size:  res.FilledSize,
		OpenedAt:  sig.Timestamp,
	}
	h.journal.Record(map[string]any{
		"event": "leg1_filled",
		"side":  string(sig.Side),
		"price": h.position.Leg1Price,
		"size":  h.position.Leg1Size,
	})
}

// evaluateLeg2 runs on every quote tick while a position is open, in priority
// order: profit lock, sum target, timeout.
func (h *Hedge) evaluateLeg2(ctx context.Context, now time.Time) {
	pos := h.position
	opposite := pos.Leg1Side.Opposite()
	oq, ok := h.latest[opposite]
	if !ok {
		return
	}
	sum := pos.Leg1Price + oq.BestAsk
	h.log.Debug("leg2 evaluation",
		zap.Float64("sum_price", sum),
		zap.Float64("unrealized", (1-sum)*pos.Leg1Size),
	)
	if h.profitLockHit() {
		h.enterLeg2(ctx, oq, ReasonProfitLock, now)
		return
	}
	if sum <= h.strat.SumTarget {
		h.enterLeg2(ctx, oq, ReasonSumTarget, now)
		return
	}
	if now.Sub(pos.OpenedAt) >= h.strat.Leg2Timeout {
		h.handleLeg2Timeout(ctx, oq, now)
	}
}

func (h *Hedge) profitLockHit() bool {
	if h.strat.ProfitLockBps <= 0 {
		return false
	}
	lq, ok := h.latest[h.position.Leg1Side]
	if !ok {
		return false
	}
	move := (lq.BestBid - h.position.Leg1Price) / h.position.Leg1Price
	return move >= h.strat.ProfitLockBps/10000
}

func (h *Hedge) handleLeg2Timeout(ctx context.Context, oq market.Quote, now time.Time) {
	if h.strat.Leg2TimeoutAction == TimeoutActionSkip {
		// Leg 1 stays unhedged; realized cost beyond leg 1 is booked as zero.
		h.log.Warn("leg2 timeout, abandoning cycle")
		h.closeCycle(ReasonTimeoutSkip, now)
		return
	}
	sum := h.position.Leg1Price + oq.BestAsk
	if sum <= h.strat.SumTargetMax {
		h.enterLeg2(ctx, oq, ReasonTimeoutDefensive, now)
		return
	}
	h.log.Info("leg2 timeout, defensive ceiling not met", zap.Float64("sum_price", sum))
}

func (h *Hedge) enterLeg2(ctx context.Context, q market.Quote, reason string, now time.Time) {
	size := math.Min(h.position.Leg1Size, h.sizeFor(q.BestAsk))
	if size <= 0 {
		return
	}
	req := exec.Request{
		Side:          q.Side,
		Price:         h.applySlippage(q.BestAsk),
		Size:          size,
		ClientOrderID: h.newID("leg2"),
	}
	h.gate.RegisterOrder(now)
	res, err := h.executeWithRequote(ctx, req, q.BestAsk)
	if err != nil || res.Status != exec.StatusFilled {
		// Position stays open for re-evaluation on the next quote.
		h.gate.RegisterFailure(now)
		h.metrics.OrdersFailed.Inc()
		h.log.Warn("leg2 not filled", zap.String("status", string(res.Status)), zap.Error(err))
		return
	}
	h.gate.RegisterSuccess()
	h.metrics.OrdersPlaced.Inc()
	price := res.AvgPrice
	if price == 0 {
		price = req.Price
	}
	h.position.Leg2Filled = true
	h.position.Leg2Side = q.Side
	h.position.Leg2Price = price
	h.position.Leg2Size = res.FilledSize
	h.journal.Record(map[string]any{
		"event":  "leg2_filled",
		"side":   string(q.Side),
		"price":  price,
		"size":   res.FilledSize,
		"reason": reason,
	})
	h.closeCycle(ReasonCompleted, now)
}

func (h *Hedge) closeCycle(reason string, now time.Time) {
	pos := h.position
	pnl := h.estimatePnL()
	h.gate.RecordPnL(pnl)
	record := map[string]any{
		"event":        "cycle_closed",
		"reason":       reason,
		"pnl_estimate": pnl,
		"leg1_side":    string(pos.Leg1Side),
		"leg1_price":   pos.Leg1Price,
		"leg1_size":    pos.Leg1Size,
	}
	if pos.Leg2Filled {
		record["leg2_side"] = string(pos.Leg2Side)
		record["leg2_price"] = pos.Leg2Price
		record["leg2_size"] = pos.Leg2Size
	}
	h.journal.Record(record)
	h.metrics.CyclesCompleted.Inc()
	h.log.Info("cycle closed", zap.String("reason", reason), zap.Float64("pnl_estimate", pnl))
	h.position = nil
	h.gate.RegisterCycleEnd(now)
}

func (h *Hedge) estimatePnL() float64 {
	if h.position == nil || !h.position.Leg2Filled {
		return 0
	}
	totalCost := h.position.Leg1Price + h.position.Leg2Price
	return (1 - totalCost) * h.position.Leg1Size
}

func (h *Hedge) applySlippage(price float64) float64 {
	return price * (1 + h.slipBps/10000)
}

// sizeFor converts the per-leg USD budget into contracts at the given ask,
// rounded to 6 decimal places.
func (h *Hedge) sizeFor(price float64) float64 {
	if price <= 0 {
		return 0
	}
	maxUSD := math.Min(h.riskCfg.MaxUSDPerLeg, h.riskCfg.BankrollUSD)
	return math.Round(maxUSD/price*1e6) / 1e6
}

// executeWithRequote drives the engine once and then up to maxRequotes more
// times, each attempt re-priced from the same ask with a fresh client id.
func (h *Hedge) executeWithRequote(ctx context.Context, req exec.Request, ask float64) (exec.Result, error) {
	res, err := h.engine.ExecuteLimitGTC(ctx, req)
	if err != nil {
		return res, err
	}
	if res.Status == exec.StatusFilled {
		return res, nil
	}
	for i := 0; i < h.requotes; i++ {
		refreshed := exec.Request{
			Side:          req.Side,
			Price:         h.applySlippage(ask),
			Size:          req.Size,
			ClientOrderID: h.newID("req"),
		}
		res, err = h.engine.ExecuteLimitGTC(ctx, refreshed)
		if err != nil {
			return res, err
		}
		if res.Status == exec.StatusFilled {
			return res, nil
		}
	}
	return res, nil
}
