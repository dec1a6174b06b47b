package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pm-dip-bot/internal/alerts"
	"pm-dip-bot/internal/config"
	"pm-dip-bot/internal/exec"
	"pm-dip-bot/internal/feed"
	"pm-dip-bot/internal/journal"
	"pm-dip-bot/internal/market"
	"pm-dip-bot/internal/metrics"
	"pm-dip-bot/internal/pm/orders"
	"pm-dip-bot/internal/risk"
	"pm-dip-bot/internal/state"
	"pm-dip-bot/internal/state/sqlite"
	"pm-dip-bot/internal/strategy"
	"pm-dip-bot/internal/timescale"

	"go.uber.org/zap"
)

const polygonChainID = 137

type App struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *sqlite.Store
	feed     *feed.Feed
	detector *market.Detector
	gate     *risk.Gate
	hedge    *strategy.Hedge
	journal  *journal.Journal
	metrics  *metrics.Metrics
	promSrv  *http.Server
	alerts   *alerts.Telegram
	recorder *timescale.Writer

	mu             sync.Mutex
	currentDay     string
	operatorWarned bool
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	var adapter exec.OrderAdapter
	if cfg.DryRun {
		adapter = orders.NewPaper(log)
		log.Info("dry run enabled, orders are simulated")
	} else {
		creds := orders.Credentials{
			APIKey:     os.Getenv("PM_API_KEY"),
			APISecret:  os.Getenv("PM_API_SECRET"),
			PrivateKey: os.Getenv("PM_PRIVATE_KEY"),
			ChainID:    polygonChainID,
		}
		live, err := orders.NewLive(cfg.Execution, cfg.Market, creds, log)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		adapter = live
	}

	m := metrics.NewNoop()
	var promSrv *http.Server
	if cfg.Metrics.Listen != "" {
		prom := metrics.NewPrometheus()
		m = prom.Metrics
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		promSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
	}

	recorder, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		log.Warn("timescale disabled", zap.Error(err))
		recorder = nil
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		detector: market.NewDetector(cfg.Strategy),
		gate:     risk.NewGate(cfg.Risk, log),
		metrics:  m,
		promSrv:  promSrv,
		alerts:   alerts.NewTelegram(cfg.Telegram, log),
		recorder: recorder,
		feed:     feed.New(cfg.Datafeed, cfg.Market, log),
	}
	engine := exec.NewEngine(adapter, cfg.Execution.OrderTTL, log)
	jr := journal.New(cfg.Journal.Dir, store, log)
	a.journal = jr
	a.hedge = strategy.New(cfg, engine, a.gate, &journalMirror{journal: jr, app: a}, m, log)
	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.journal.Close()
	if a.recorder != nil {
		defer a.recorder.Close()
	}

	now := time.Now().UTC()
	a.currentDay = utcDay(now)
	a.restoreRiskState(ctx, now)
	a.gate.SetChangeHook(a.persistRiskState)
	a.gate.SetBreakerHook(func(until time.Time) {
		a.metrics.BreakerEngaged.Inc()
		a.notify(fmt.Sprintf("circuit breaker engaged until %s", until.UTC().Format(time.RFC3339)))
	})

	if a.promSrv != nil {
		go func() {
			if err := a.promSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.log.Warn("metrics server failed", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = a.promSrv.Shutdown(shutdownCtx)
		}()
	}
	if a.recorder != nil {
		a.recorder.Start(ctx)
	}
	a.startOperator(ctx)

	a.log.Info("starting datafeed",
		zap.String("market", a.cfg.Market),
		zap.String("mode", a.cfg.Datafeed.Mode),
		zap.Bool("dry_run", a.cfg.DryRun),
	)
	return a.feed.Run(ctx, func(q market.Quote) {
		a.onQuote(ctx, q)
	})
}

func (a *App) onQuote(ctx context.Context, q market.Quote) {
	a.rolloverDayIfNeeded(q.Timestamp)
	if a.recorder != nil {
		a.recorder.EnqueueTick(timescale.QuoteTick{
			Time:      q.Timestamp,
			Market:    a.cfg.Market,
			Side:      string(q.Side),
			BestBid:   q.BestBid,
			BestAsk:   q.BestAsk,
			Spread:    q.Spread,
			Liquidity: q.Liquidity,
		})
	}
	a.hedge.OnQuote(ctx, q)
	sig, ok := a.detector.Update(q)
	if !ok {
		return
	}
	a.metrics.SignalsDetected.Inc()
	a.hedge.OnSignal(ctx, sig)
}

func (a *App) rolloverDayIfNeeded(now time.Time) {
	day := utcDay(now.UTC())
	a.mu.Lock()
	changed := day != a.currentDay
	if changed {
		a.currentDay = day
	}
	a.mu.Unlock()
	if changed {
		a.gate.ResetDaily(now)
	}
}

// restoreRiskState reloads the durable risk counters, but only when the
// snapshot belongs to the current UTC day. A stale snapshot means the daily
// counters already expired.
func (a *App) restoreRiskState(ctx context.Context, now time.Time) {
	snapshot, ok, err := state.LoadRiskSnapshot(ctx, a.store)
	if err != nil {
		a.log.Warn("risk snapshot load failed", zap.Error(err))
		return
	}
	if !ok || snapshot.Day != utcDay(now) {
		return
	}
	a.gate.Restore(risk.State{
		DailyLossUSD:        snapshot.DailyLossUSD,
		ConsecutiveFailures: snapshot.ConsecutiveFailures,
		CircuitBreakerUntil: snapshot.BreakerUntil(),
	})
	a.log.Info("restored risk state",
		zap.Float64("daily_loss_usd", snapshot.DailyLossUSD),
		zap.Int("consecutive_failures", snapshot.ConsecutiveFailures),
	)
}

func (a *App) persistRiskState(st risk.State) {
	snapshot := state.RiskSnapshot{
		Day:                 utcDay(time.Now().UTC()),
		DailyLossUSD:        st.DailyLossUSD,
		ConsecutiveFailures: st.ConsecutiveFailures,
	}
	if !st.CircuitBreakerUntil.IsZero() {
		snapshot.BreakerUntilMS = st.CircuitBreakerUntil.UnixMilli()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := state.SaveRiskSnapshot(ctx, a.store, snapshot); err != nil {
		a.log.Warn("risk snapshot save failed", zap.Error(err))
	}
}

func (a *App) notify(message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.alerts.Send(ctx, message); err != nil {
		a.log.Warn("alert send failed", zap.Error(err))
	}
}

func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// journalMirror forwards every strategy record to the JSONL journal and
// mirrors closed cycles into the timescale recorder.
type journalMirror struct {
	journal *journal.Journal
	app     *App
}

func (j *journalMirror) Record(event map[string]any) {
	j.journal.Record(event)
	if kind, _ := event["event"].(string); kind != "cycle_closed" {
		return
	}
	if j.app.alerts.Enabled() {
		msg := fmt.Sprintf("cycle closed (%s): pnl %.4f USD",
			asString(event["reason"]), asFloat(event["pnl_estimate"]))
		// Off the quote path; a slow bot API must not stall the feed.
		go j.app.notify(msg)
	}
	if j.app.recorder == nil {
		return
	}
	cycle := timescale.HedgeCycle{
		Time:      time.Now().UTC(),
		Market:    j.app.cfg.Market,
		Reason:    asString(event["reason"]),
		Leg1Side:  asString(event["leg1_side"]),
		Leg1Price: asFloat(event["leg1_price"]),
		Leg1Size:  asFloat(event["leg1_size"]),
		PnLUSD:    asFloat(event["pnl_estimate"]),
	}
	if side := asString(event["leg2_side"]); side != "" {
		cycle.HasLeg2 = true
		cycle.Leg2Side = side
		cycle.Leg2Price = asFloat(event["leg2_price"])
		cycle.Leg2Size = asFloat(event["leg2_size"])
	}
	j.app.recorder.EnqueueCycle(cycle)
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
