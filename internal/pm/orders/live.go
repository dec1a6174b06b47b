package orders

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"pm-dip-bot/internal/config"
	"pm-dip-bot/internal/exec"
	"pm-dip-bot/internal/pm/auth"
	"pm-dip-bot/internal/pm/rest"

	"go.uber.org/zap"
)

// Live submits orders to the CLOB REST API. It never retries; transport
// errors surface to the execution engine's caller.
type Live struct {
	rest   *rest.Client
	market string
	paths  config.ExecutionConfig

	apiKey    string
	apiSecret string
	signer    *auth.Signer

	log *zap.Logger
}

type Credentials struct {
	APIKey     string
	APISecret  string
	PrivateKey string
	ChainID    int64
}

func NewLive(cfg config.ExecutionConfig, marketSlug string, creds Credentials, log *zap.Logger) (*Live, error) {
	l := &Live{
		rest:      rest.New(cfg.RESTURL, cfg.RequestTimeout, log),
		market:    marketSlug,
		paths:     cfg,
		apiKey:    strings.TrimSpace(creds.APIKey),
		apiSecret: strings.TrimSpace(creds.APISecret),
		log:       log,
	}
	if key := strings.TrimSpace(strings.TrimPrefix(creds.PrivateKey, "0x")); key != "" {
		signer, err := auth.NewSigner(key, creds.ChainID)
		if err != nil {
			return nil, err
		}
		l.signer = signer
		log.Info("clob auth signer enabled", zap.String("address", signer.Address().Hex()))
	}
	return l, nil
}

type orderPayload struct {
	Market        string  `json:"market"`
	Side          string  `json:"side"`
	Price         float64 `json:"price"`
	Size          float64 `json:"size"`
	TimeInForce   string  `json:"time_in_force"`
	ClientOrderID string  `json:"client_order_id"`
}

type orderResponse struct {
	ID            string  `json:"id"`
	OrderID       string  `json:"order_id"`
	Status        string  `json:"status"`
	FilledSize    float64 `json:"filled_size"`
	AvgPrice      float64 `json:"avg_price"`
	RemainingSize float64 `json:"remaining_size"`
	Error         string  `json:"error"`
}

func (l *Live) PlaceOrder(ctx context.Context, req exec.Request) (exec.Result, error) {
	payload := orderPayload{
		Market:        l.market,
		Side:          string(req.Side),
		Price:         req.Price,
		Size:          req.Size,
		TimeInForce:   "GTC",
		ClientOrderID: req.ClientOrderID,
	}
	headers, err := l.headers()
	if err != nil {
		return exec.Result{}, err
	}
	var resp orderResponse
	if err := l.rest.Do(ctx, http.MethodPost, l.paths.OrderPath, headers, payload, &resp); err != nil {
		return exec.Result{}, err
	}
	orderID := resp.ID
	if orderID == "" {
		orderID = resp.OrderID
	}
	if orderID == "" {
		orderID = req.ClientOrderID
	}
	res := toResult(orderID, resp)
	if res.Status == "" {
		// The venue acks placement without echoing a status.
		res.Status = exec.StatusOpen
		res.RemainingSize = req.Size
	}
	return res, nil
}

func (l *Live) FetchOrder(ctx context.Context, orderID string) (exec.Result, error) {
	if orderID == "" {
		return exec.Result{}, errors.New("order id is required")
	}
	headers, err := l.headers()
	if err != nil {
		return exec.Result{}, err
	}
	var resp orderResponse
	path := expandOrderPath(l.paths.OrderStatusPath, orderID)
	if err := l.rest.Do(ctx, http.MethodGet, path, headers, nil, &resp); err != nil {
		return exec.Result{}, err
	}
	id := resp.ID
	if id == "" {
		id = orderID
	}
	return toResult(id, resp), nil
}

func (l *Live) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return errors.New("order id is required")
	}
	headers, err := l.headers()
	if err != nil {
		return err
	}
	path := expandOrderPath(l.paths.CancelPath, orderID)
	return l.rest.Do(ctx, http.MethodDelete, path, headers, nil, nil)
}

func (l *Live) headers() (map[string]string, error) {
	headers := make(map[string]string)
	if l.apiKey != "" {
		headers["X-API-KEY"] = l.apiKey
	}
	if l.apiSecret != "" {
		headers["X-API-SECRET"] = l.apiSecret
	}
	if l.signer != nil {
		authHeaders, err := l.signer.Headers(time.Now().UTC(), 0)
		if err != nil {
			return nil, err
		}
		for k, v := range authHeaders {
			headers[k] = v
		}
	}
	return headers, nil
}

func toResult(orderID string, resp orderResponse) exec.Result {
	return exec.Result{
		OrderID:       orderID,
		FilledSize:    resp.FilledSize,
		AvgPrice:      resp.AvgPrice,
		Status:        exec.Status(resp.Status),
		RemainingSize: resp.RemainingSize,
		Err:           resp.Error,
	}
}

func expandOrderPath(template, orderID string) string {
	return strings.ReplaceAll(template, "{order_id}", orderID)
}
