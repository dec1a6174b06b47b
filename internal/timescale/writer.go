package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"pm-dip-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

type QuoteTick struct {
	Time      time.Time
	Market    string
	Side      string
	BestBid   float64
	BestAsk   float64
	Spread    float64
	Liquidity float64
}

type HedgeCycle struct {
	Time      time.Time
	Market    string
	Reason    string
	Leg1Side  string
	Leg1Price float64
	Leg1Size  float64
	Leg2Side  string
	Leg2Price float64
	Leg2Size  float64
	HasLeg2   bool
	PnLUSD    float64
}

// Writer records quote ticks and closed hedge cycles to TimescaleDB. Writes
// go through bounded queues; ticks are dropped when the queue is full rather
// than stalling the feed.
type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	ticks     chan QuoteTick
	cycles    chan HedgeCycle
	started   atomic.Bool
	dropTick  atomic.Uint64
	dropCycle atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:     db,
		log:    log,
		schema: schema,
		ticks:  make(chan QuoteTick, queueSize),
		cycles: make(chan HedgeCycle, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueTick(tick QuoteTick) {
	if w == nil {
		return
	}
	select {
	case w.ticks <- tick:
		return
	default:
		if w.dropTick.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale tick queue full")
		}
	}
}

func (w *Writer) EnqueueCycle(cycle HedgeCycle) {
	if w == nil {
		return
	}
	select {
	case w.cycles <- cycle:
		return
	default:
		if w.dropCycle.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale cycle queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-w.ticks:
			w.writeTick(ctx, tick)
		case cycle := <-w.cycles:
			w.writeCycle(ctx, cycle)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		market TEXT NOT NULL,
		side TEXT NOT NULL,
		best_bid DOUBLE PRECISION NOT NULL,
		best_ask DOUBLE PRECISION NOT NULL,
		spread DOUBLE PRECISION NOT NULL,
		liquidity DOUBLE PRECISION NOT NULL DEFAULT 0
	)`, w.table("quote_ticks"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		market TEXT NOT NULL,
		reason TEXT NOT NULL,
		leg1_side TEXT NOT NULL,
		leg1_price DOUBLE PRECISION NOT NULL,
		leg1_size DOUBLE PRECISION NOT NULL,
		leg2_side TEXT,
		leg2_price DOUBLE PRECISION,
		leg2_size DOUBLE PRECISION,
		pnl_usd DOUBLE PRECISION NOT NULL
	)`, w.table("hedge_cycles"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("quote_ticks"))); err != nil && w.log != nil {
		w.log.Warn("timescale quote_ticks hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("hedge_cycles"))); err != nil && w.log != nil {
		w.log.Warn("timescale hedge_cycles hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeTick(ctx context.Context, tick QuoteTick) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, market, side, best_bid, best_ask, spread, liquidity
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7
	)`, w.table("quote_ticks"))
	if _, err := w.db.ExecContext(ctx, query,
		tick.Time,
		tick.Market,
		tick.Side,
		tick.BestBid,
		tick.BestAsk,
		tick.Spread,
		tick.Liquidity,
	); err != nil && w.log != nil {
		w.log.Warn("timescale tick insert failed", zap.Error(err))
	}
}

func (w *Writer) writeCycle(ctx context.Context, cycle HedgeCycle) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	var leg2Side any
	var leg2Price, leg2Size any
	if cycle.HasLeg2 {
		leg2Side = cycle.Leg2Side
		leg2Price = cycle.Leg2Price
		leg2Size = cycle.Leg2Size
	}
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, market, reason, leg1_side, leg1_price, leg1_size, leg2_side, leg2_price, leg2_size, pnl_usd
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
	)`, w.table("hedge_cycles"))
	if _, err := w.db.ExecContext(ctx, query,
		cycle.Time,
		cycle.Market,
		cycle.Reason,
		cycle.Leg1Side,
		cycle.Leg1Price,
		cycle.Leg1Size,
		leg2Side,
		leg2Price,
		leg2Size,
		cycle.PnLUSD,
	); err != nil && w.log != nil {
		w.log.Warn("timescale cycle insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
