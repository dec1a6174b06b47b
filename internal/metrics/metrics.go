package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	SignalsDetected Counter
	OrdersPlaced    Counter
	OrdersFailed    Counter
	CyclesCompleted Counter
	BreakerEngaged  Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		SignalsDetected: n,
		OrdersPlaced:    n,
		OrdersFailed:    n,
		CyclesCompleted: n,
		BreakerEngaged:  n,
	}
}
