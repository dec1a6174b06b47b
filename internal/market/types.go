package market

import "time"

// Side identifies one leg of a binary-outcome market.
type Side string

const (
	SideUp   Side = "UP"
	SideDown Side = "DOWN"
)

func (s Side) Opposite() Side {
	if s == SideUp {
		return SideDown
	}
	return SideUp
}

// Quote is an immutable best-price snapshot for one side of the book.
type Quote struct {
	Side      Side
	BestBid   float64
	BestAsk   float64
	Liquidity float64
	Spread    float64
	Timestamp time.Time
}

// SignalEvent is a threshold-crossing move detected over the rolling window.
type SignalEvent struct {
	Timestamp  time.Time
	Side       Side
	EntryPrice float64
	MovePct    float64
	Spread     float64
	Liquidity  float64
}
