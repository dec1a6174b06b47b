package market

import (
	"math"
	"testing"
	"time"

	"pm-dip-bot/internal/config"
)

func quoteAt(side Side, ask float64, ts time.Time) Quote {
	return Quote{Side: side, BestAsk: ask, BestBid: ask - 0.02, Spread: 0.02, Timestamp: ts}
}

func TestRollingWindowEvictsOldSamples(t *testing.T) {
	w := &rollingWindow{window: 3 * time.Second}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		w.add(base.Add(time.Duration(i)*time.Second), 0.5)
	}
	latest := w.samples[len(w.samples)-1].ts
	cutoff := latest.Add(-3 * time.Second)
	for _, s := range w.samples {
		if s.ts.Before(cutoff) {
			t.Fatalf("retained sample %v older than cutoff %v", s.ts, cutoff)
		}
	}
	if len(w.samples) != 4 {
		t.Fatalf("expected 4 retained samples, got %d", len(w.samples))
	}
}

func TestMovementPctUndefined(t *testing.T) {
	w := &rollingWindow{window: 5 * time.Second}
	if _, ok := w.movementPct(); ok {
		t.Fatalf("expected no movement with empty window")
	}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.add(base, 0.5)
	if _, ok := w.movementPct(); ok {
		t.Fatalf("expected no movement with a single sample")
	}
	w = &rollingWindow{window: 5 * time.Second}
	w.add(base, 0)
	w.add(base.Add(time.Second), 0.5)
	if _, ok := w.movementPct(); ok {
		t.Fatalf("expected no movement with zero oldest price")
	}
}

func TestDetectorDumpSignal(t *testing.T) {
	d := NewDetector(config.StrategyConfig{TriggerMode: TriggerDump, MoveWindow: 10 * time.Second, MovePctThreshold: 10})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if _, ok := d.Update(quoteAt(SideUp, 100, base)); ok {
		t.Fatalf("single sample should not fire")
	}
	if _, ok := d.Update(quoteAt(SideUp, 100, base.Add(time.Second))); ok {
		t.Fatalf("flat window should not fire")
	}
	sig, ok := d.Update(quoteAt(SideUp, 89, base.Add(2*time.Second)))
	if !ok {
		t.Fatalf("expected dump signal")
	}
	if sig.Side != SideUp {
		t.Fatalf("expected side UP, got %s", sig.Side)
	}
	if math.Abs(sig.MovePct+11) > 0.0001 {
		t.Fatalf("expected move_pct ~ -11, got %f", sig.MovePct)
	}
	if sig.EntryPrice != 89 {
		t.Fatalf("expected entry price 89, got %f", sig.EntryPrice)
	}
}

func TestDetectorBelowThresholdNoSignal(t *testing.T) {
	d := NewDetector(config.StrategyConfig{TriggerMode: TriggerDump, MoveWindow: 10 * time.Second, MovePctThreshold: 10})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.Update(quoteAt(SideUp, 100, base))
	if _, ok := d.Update(quoteAt(SideUp, 95, base.Add(time.Second))); ok {
		t.Fatalf("5%% dump should not cross a 10%% threshold")
	}
}

func TestDetectorPumpMode(t *testing.T) {
	d := NewDetector(config.StrategyConfig{TriggerMode: TriggerPump, MoveWindow: 10 * time.Second, MovePctThreshold: 10})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.Update(quoteAt(SideDown, 0.40, base))
	if _, ok := d.Update(quoteAt(SideDown, 0.36, base.Add(time.Second))); ok {
		t.Fatalf("dump move should not fire in pump mode")
	}
	sig, ok := d.Update(quoteAt(SideDown, 0.46, base.Add(2*time.Second)))
	if !ok {
		t.Fatalf("expected pump signal")
	}
	if sig.MovePct < 10 {
		t.Fatalf("expected move_pct >= 10, got %f", sig.MovePct)
	}
}

func TestDetectorKeepsIndependentSideWindows(t *testing.T) {
	d := NewDetector(config.StrategyConfig{TriggerMode: TriggerDump, MoveWindow: 10 * time.Second, MovePctThreshold: 10})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.Update(quoteAt(SideUp, 0.50, base))
	d.Update(quoteAt(SideDown, 0.50, base))
	if _, ok := d.Update(quoteAt(SideDown, 0.40, base.Add(time.Second))); !ok {
		t.Fatalf("DOWN window should fire on its own samples")
	}
	if _, ok := d.Update(quoteAt(SideUp, 0.49, base.Add(time.Second))); ok {
		t.Fatalf("UP window should not be affected by DOWN samples")
	}
}
