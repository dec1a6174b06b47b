package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pm-dip-bot/internal/config"
	"pm-dip-bot/internal/exec"
	"pm-dip-bot/internal/market"

	"go.uber.org/zap"
)

func testExecConfig(baseURL string) config.ExecutionConfig {
	return config.ExecutionConfig{
		RESTURL:         baseURL,
		OrderPath:       "/orders",
		OrderStatusPath: "/orders/{order_id}",
		CancelPath:      "/orders/{order_id}",
		RequestTimeout:  2 * time.Second,
	}
}

func TestLivePlaceOrder(t *testing.T) {
	var gotPayload orderPayload
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("X-API-KEY")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":             "ord-1",
			"status":         "open",
			"remaining_size": gotPayload.Size,
		})
	}))
	defer srv.Close()

	live, err := NewLive(testExecConfig(srv.URL), "BTC-15M", Credentials{APIKey: "k1", APISecret: "s1"}, zap.NewNop())
	if err != nil {
		t.Fatalf("new live: %v", err)
	}
	res, err := live.PlaceOrder(context.Background(), exec.Request{
		Side:          market.SideUp,
		Price:         0.42,
		Size:          3.5,
		ClientOrderID: "cid-1",
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if res.OrderID != "ord-1" || res.Status != exec.StatusOpen {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotKey != "k1" {
		t.Fatalf("missing api key header, got %q", gotKey)
	}
	if gotPayload.Market != "BTC-15M" || gotPayload.Side != "UP" || gotPayload.TimeInForce != "GTC" {
		t.Fatalf("unexpected payload %+v", gotPayload)
	}
	if gotPayload.ClientOrderID != "cid-1" {
		t.Fatalf("client order id not forwarded: %+v", gotPayload)
	}
}

func TestLivePlaceOrderImmediateFill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"order_id":    "ord-2",
			"status":      "filled",
			"filled_size": 3.5,
			"avg_price":   0.42,
		})
	}))
	defer srv.Close()

	live, err := NewLive(testExecConfig(srv.URL), "BTC-15M", Credentials{}, zap.NewNop())
	if err != nil {
		t.Fatalf("new live: %v", err)
	}
	res, err := live.PlaceOrder(context.Background(), exec.Request{Side: market.SideUp, Price: 0.42, Size: 3.5})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if res.OrderID != "ord-2" || res.Status != exec.StatusFilled || res.FilledSize != 3.5 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestLiveFetchAndCancel(t *testing.T) {
	var canceled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/ord-3" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"id": "ord-3", "status": "open", "remaining_size": 2.0})
		case http.MethodDelete:
			canceled = true
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	live, err := NewLive(testExecConfig(srv.URL), "BTC-15M", Credentials{}, zap.NewNop())
	if err != nil {
		t.Fatalf("new live: %v", err)
	}
	res, err := live.FetchOrder(context.Background(), "ord-3")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Status != exec.StatusOpen || res.RemainingSize != 2.0 {
		t.Fatalf("unexpected fetch result %+v", res)
	}
	if err := live.CancelOrder(context.Background(), "ord-3"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !canceled {
		t.Fatalf("delete never reached server")
	}
}

func TestLiveErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"insufficient balance"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	live, err := NewLive(testExecConfig(srv.URL), "BTC-15M", Credentials{}, zap.NewNop())
	if err != nil {
		t.Fatalf("new live: %v", err)
	}
	if _, err := live.PlaceOrder(context.Background(), exec.Request{Side: market.SideDown, Price: 0.5, Size: 1}); err == nil {
		t.Fatalf("expected error on 422")
	}
}

func TestLiveRejectsEmptyOrderID(t *testing.T) {
	live, err := NewLive(testExecConfig("http://127.0.0.1:0"), "BTC-15M", Credentials{}, zap.NewNop())
	if err != nil {
		t.Fatalf("new live: %v", err)
	}
	if _, err := live.FetchOrder(context.Background(), ""); err == nil {
		t.Fatalf("expected fetch error for empty id")
	}
	if err := live.CancelOrder(context.Background(), ""); err == nil {
		t.Fatalf("expected cancel error for empty id")
	}
}
