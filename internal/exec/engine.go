package exec

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// OrderAdapter is the capability contract the engine drives orders through.
// Transport errors are returned as-is; the engine does not retry them.
type OrderAdapter interface {
	PlaceOrder(ctx context.Context, req Request) (Result, error)
	FetchOrder(ctx context.Context, orderID string) (Result, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Engine drives a single order through place, wait-for-fill-until-TTL,
// cancel. Requoting is the caller's responsibility.
type Engine struct {
	adapter OrderAdapter
	ttl     time.Duration
	log     *zap.Logger
}

func NewEngine(adapter OrderAdapter, ttl time.Duration, log *zap.Logger) *Engine {
	return &Engine{adapter: adapter, ttl: ttl, log: log}
}

func (e *Engine) ExecuteLimitGTC(ctx context.Context, req Request) (Result, error) {
	res, err := e.adapter.PlaceOrder(ctx, req)
	if err != nil {
		return res, err
	}
	if res.Status == StatusFilled {
		return res, nil
	}

	select {
	case <-ctx.Done():
		return res, ctx.Err()
	case <-time.After(e.ttl):
	}

	refreshed, err := e.adapter.FetchOrder(ctx, res.OrderID)
	if err != nil {
		return refreshed, err
	}
	if refreshed.Status == StatusFilled {
		return refreshed, nil
	}

	if err := e.adapter.CancelOrder(ctx, res.OrderID); err != nil {
		return refreshed, err
	}
	e.log.Info("order unfilled after ttl, canceled",
		zap.String("order_id", res.OrderID),
		zap.String("client_order_id", req.ClientOrderID),
	)
	return refreshed, nil
}
