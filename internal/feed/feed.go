package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"pm-dip-bot/internal/config"
	"pm-dip-bot/internal/market"
	"pm-dip-bot/internal/pm/rest"
	"pm-dip-bot/internal/pm/ws"

	"go.uber.org/zap"
)

// Feed delivers best-price quotes for both sides of one market, either over
// the exchange websocket or by polling the REST book endpoint.
type Feed struct {
	cfg    config.DatafeedConfig
	market string
	ws     *ws.Client
	rest   *rest.Client
	log    *zap.Logger
}

func New(cfg config.DatafeedConfig, marketSlug string, log *zap.Logger) *Feed {
	return &Feed{
		cfg:    cfg,
		market: marketSlug,
		ws:     ws.New(cfg.WSURL, 5*time.Second, 10*time.Second, log),
		rest:   rest.New(cfg.RESTURL, 10*time.Second, log),
		log:    log,
	}
}

// Run blocks until ctx ends, invoking handler for every parsed quote.
func (f *Feed) Run(ctx context.Context, handler func(market.Quote)) error {
	switch f.cfg.Mode {
	case "websocket":
		return f.runWebsocket(ctx, handler)
	case "polling":
		return f.runPolling(ctx, handler)
	default:
		return fmt.Errorf("unknown datafeed mode %q", f.cfg.Mode)
	}
}

func (f *Feed) runWebsocket(ctx context.Context, handler func(market.Quote)) error {
	if err := f.ws.Connect(ctx); err != nil {
		return err
	}
	sub := map[string]any{
		"type":    "subscribe",
		"channel": "orderbook",
		"market":  f.market,
	}
	if err := f.ws.Subscribe(ctx, sub); err != nil {
		return err
	}
	return f.ws.Run(ctx, func(raw json.RawMessage) {
		quote, err := ParseBookPayload(raw, time.Now().UTC())
		if err != nil {
			f.log.Debug("dropping unparseable book message", zap.Error(err))
			return
		}
		handler(quote)
	})
}

func (f *Feed) runPolling(ctx context.Context, handler func(market.Quote)) error {
	backoff := f.cfg.PollInterval
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		quotes, err := f.fetchBook(ctx)
		if err != nil {
			f.log.Warn("book poll failed", zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > f.cfg.BackoffMax {
				backoff = f.cfg.BackoffMax
			}
			continue
		}
		backoff = f.cfg.PollInterval
		for _, q := range quotes {
			handler(q)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.cfg.PollInterval):
		}
	}
}

type bookSide struct {
	Side      string  `json:"side"`
	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	Liquidity float64 `json:"liquidity"`
}

type bookResponse struct {
	Market string     `json:"market"`
	Sides  []bookSide `json:"sides"`
}

func (f *Feed) fetchBook(ctx context.Context) ([]market.Quote, error) {
	params := url.Values{"market": {f.market}}
	var resp bookResponse
	if err := f.rest.Get(ctx, f.cfg.OrderbookPath, params, &resp); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	quotes := make([]market.Quote, 0, len(resp.Sides))
	for _, s := range resp.Sides {
		q, err := quoteFromSide(s, now)
		if err != nil {
			f.log.Debug("dropping book side", zap.Error(err))
			continue
		}
		quotes = append(quotes, q)
	}
	if len(quotes) == 0 {
		return nil, errors.New("book response had no usable sides")
	}
	return quotes, nil
}

// ParseBookPayload converts one websocket book message into a quote. Messages
// without a recognized side (pings, acks) return an error and are dropped.
func ParseBookPayload(raw json.RawMessage, now time.Time) (market.Quote, error) {
	var s bookSide
	if err := json.Unmarshal(raw, &s); err != nil {
		return market.Quote{}, err
	}
	return quoteFromSide(s, now)
}

func quoteFromSide(s bookSide, now time.Time) (market.Quote, error) {
	var side market.Side
	switch strings.ToUpper(s.Side) {
	case string(market.SideUp):
		side = market.SideUp
	case string(market.SideDown):
		side = market.SideDown
	default:
		return market.Quote{}, fmt.Errorf("unknown side %q", s.Side)
	}
	if s.BestAsk <= 0 || s.BestAsk >= 1 {
		return market.Quote{}, fmt.Errorf("best_ask %v out of range", s.BestAsk)
	}
	if s.BestBid < 0 || s.BestBid >= 1 {
		return market.Quote{}, fmt.Errorf("best_bid %v out of range", s.BestBid)
	}
	spread := s.BestAsk - s.BestBid
	if spread < 0 {
		spread = 0
	}
	return market.Quote{
		Side:      side,
		BestBid:   s.BestBid,
		BestAsk:   s.BestAsk,
		Liquidity: s.Liquidity,
		Spread:    spread,
		Timestamp: now,
	}, nil
}
