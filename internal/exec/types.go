package exec

import "pm-dip-bot/internal/market"

type Status string

const (
	StatusOpen     Status = "open"
	StatusFilled   Status = "filled"
	StatusCanceled Status = "canceled"
	StatusRejected Status = "rejected"
)

// Request is one order submission attempt. ClientOrderID is fresh for every
// attempt, including requotes.
type Request struct {
	Side          market.Side
	Price         float64
	Size          float64
	ClientOrderID string
}

// Result reports the outcome of a submission or status check. AvgPrice and
// FilledSize are taken at face value from the adapter.
type Result struct {
	OrderID       string
	FilledSize    float64
	AvgPrice      float64
	Status        Status
	RemainingSize float64
	Err           string
}
