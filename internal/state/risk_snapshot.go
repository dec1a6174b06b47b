package state

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

const RiskSnapshotKey = "risk:day_snapshot"

// RiskSnapshot is the durable slice of the risk gate: the counters that must
// survive a restart so a crash-loop cannot launder the daily loss limit.
// In-flight position state is deliberately not persisted.
type RiskSnapshot struct {
	Day                 string  `json:"day"`
	DailyLossUSD        float64 `json:"daily_loss_usd"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	BreakerUntilMS      int64   `json:"breaker_until_ms"`
}

func (s RiskSnapshot) BreakerUntil() time.Time {
	if s.BreakerUntilMS == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.BreakerUntilMS).UTC()
}

func LoadRiskSnapshot(ctx context.Context, store Store) (RiskSnapshot, bool, error) {
	if store == nil {
		return RiskSnapshot{}, false, nil
	}
	raw, ok, err := store.Get(ctx, RiskSnapshotKey)
	if err != nil {
		return RiskSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return RiskSnapshot{}, false, nil
	}
	var snapshot RiskSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return RiskSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveRiskSnapshot(ctx context.Context, store Store, snapshot RiskSnapshot) error {
	if store == nil {
		return nil
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, RiskSnapshotKey, string(payload))
}
