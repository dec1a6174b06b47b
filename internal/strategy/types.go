package strategy

import (
	"fmt"
	"time"

	"pm-dip-bot/internal/market"

	"github.com/google/uuid"
)

// Position is the single open hedge cycle. The strategy is its only writer;
// it exists only between the leg-1 fill and cycle close.
type Position struct {
	Leg1Side  market.Side
	Leg1Price float64
	Leg1Size  float64
	OpenedAt  time.Time

	Leg2Filled bool
	Leg2Side   market.Side
	Leg2Price  float64
	Leg2Size   float64
}

// Journal is the durable trade-record collaborator. Schema is caller-defined
// per event kind.
type Journal interface {
	Record(event map[string]any)
}

// IDGen mints a fresh client order id per submission attempt.
type IDGen func(prefix string) string

// NewClientOrderID is the default IDGen.
func NewClientOrderID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// Cycle close reasons.
const (
	ReasonCompleted   = "completed"
	ReasonTimeoutSkip = "timeout_skip"
)

// Leg-2 entry reasons.
const (
	ReasonProfitLock       = "profit_lock"
	ReasonSumTarget        = "sum_target"
	ReasonTimeoutDefensive = "timeout_defensive"
)

const (
	TimeoutActionSkip      = "skip"
	TimeoutActionDefensive = "defensive_hedge"
)
