package orders

import (
	"context"
	"fmt"
	"sync"

	"pm-dip-bot/internal/exec"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Paper is the dry-run adapter: every order fills immediately at its limit
// price and nothing leaves the process.
type Paper struct {
	mu     sync.Mutex
	orders map[string]exec.Result
	log    *zap.Logger
}

func NewPaper(log *zap.Logger) *Paper {
	return &Paper{orders: make(map[string]exec.Result), log: log}
}

func (p *Paper) PlaceOrder(ctx context.Context, req exec.Request) (exec.Result, error) {
	_ = ctx
	res := exec.Result{
		OrderID:    fmt.Sprintf("paper-%s", uuid.NewString()),
		FilledSize: req.Size,
		AvgPrice:   req.Price,
		Status:     exec.StatusFilled,
	}
	p.mu.Lock()
	p.orders[res.OrderID] = res
	p.mu.Unlock()
	p.log.Info("paper fill",
		zap.String("side", string(req.Side)),
		zap.Float64("price", req.Price),
		zap.Float64("size", req.Size),
		zap.String("client_order_id", req.ClientOrderID),
	)
	return res, nil
}

func (p *Paper) FetchOrder(ctx context.Context, orderID string) (exec.Result, error) {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	if res, ok := p.orders[orderID]; ok {
		return res, nil
	}
	return exec.Result{}, fmt.Errorf("unknown paper order %s", orderID)
}

func (p *Paper) CancelOrder(ctx context.Context, orderID string) error {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.orders, orderID)
	return nil
}
