package market

import (
	"time"

	"pm-dip-bot/internal/config"
)

const (
	TriggerDump = "dump"
	TriggerPump = "pump"
)

type sample struct {
	ts    time.Time
	price float64
}

type rollingWindow struct {
	samples []sample
	window  time.Duration
}

// add appends one sample and evicts everything older than the window relative
// to the just-added timestamp. Samples arrive in chronological order, so
// eviction only ever happens at the front.
func (w *rollingWindow) add(ts time.Time, price float64) {
	w.samples = append(w.samples, sample{ts: ts, price: price})
	cutoff := ts.Add(-w.window)
	i := 0
	for i < len(w.samples) && w.samples[i].ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}

// movementPct returns the percentage move between the oldest and newest
// retained sample. The second return is false when fewer than two samples are
// retained or the oldest price is zero.
func (w *rollingWindow) movementPct() (float64, bool) {
	if len(w.samples) < 2 {
		return 0, false
	}
	oldest := w.samples[0].price
	newest := w.samples[len(w.samples)-1].price
	if oldest == 0 {
		return 0, false
	}
	return (newest - oldest) / oldest * 100, true
}

// Detector keeps a rolling ask-price window per side and emits a SignalEvent
// when the windowed move crosses the configured threshold in the configured
// direction. It is pure state, no I/O.
type Detector struct {
	mode      string
	threshold float64
	window    time.Duration
	windows   map[Side]*rollingWindow
}

func NewDetector(cfg config.StrategyConfig) *Detector {
	return &Detector{
		mode:      cfg.TriggerMode,
		threshold: cfg.MovePctThreshold,
		window:    cfg.MoveWindow,
		windows:   make(map[Side]*rollingWindow),
	}
}

func (d *Detector) Update(q Quote) (SignalEvent, bool) {
	w, ok := d.windows[q.Side]
	if !ok {
		w = &rollingWindow{window: d.window}
		d.windows[q.Side] = w
	}
	w.add(q.Timestamp, q.BestAsk)
	movePct, ok := w.movementPct()
	if !ok {
		return SignalEvent{}, false
	}
	fired := false
	switch d.mode {
	case TriggerDump:
		fired = movePct <= -d.threshold
	case TriggerPump:
		fired = movePct >= d.threshold
	}
	if !fired {
		return SignalEvent{}, false
	}
	return SignalEvent{
		Timestamp:  q.Timestamp,
		Side:       q.Side,
		EntryPrice: q.BestAsk,
		MovePct:    movePct,
		Spread:     q.Spread,
		Liquidity:  q.Liquidity,
	}, true
}
