package orders

import (
	"context"
	"strings"
	"testing"

	"pm-dip-bot/internal/exec"
	"pm-dip-bot/internal/market"

	"go.uber.org/zap"
)

func TestPaperFillsImmediately(t *testing.T) {
	p := NewPaper(zap.NewNop())
	res, err := p.PlaceOrder(context.Background(), exec.Request{
		Side:          market.SideDown,
		Price:         0.45,
		Size:          3.333333,
		ClientOrderID: "cid-9",
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if res.Status != exec.StatusFilled || res.AvgPrice != 0.45 || res.FilledSize != 3.333333 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.HasPrefix(res.OrderID, "paper-") {
		t.Fatalf("unexpected order id %q", res.OrderID)
	}

	again, err := p.FetchOrder(context.Background(), res.OrderID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if again != res {
		t.Fatalf("fetch mismatch: %+v vs %+v", again, res)
	}
}

func TestPaperUnknownOrder(t *testing.T) {
	p := NewPaper(zap.NewNop())
	if _, err := p.FetchOrder(context.Background(), "nope"); err == nil {
		t.Fatalf("expected error for unknown order")
	}
	// Cancel of an unknown order is a no-op.
	if err := p.CancelOrder(context.Background(), "nope"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}
