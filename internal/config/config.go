package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Market    string          `yaml:"market"`
	DryRun    bool            `yaml:"dry_run"`
	Log       LoggingConfig   `yaml:"log"`
	Datafeed  DatafeedConfig  `yaml:"datafeed"`
	Execution ExecutionConfig `yaml:"execution"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Risk      RiskConfig      `yaml:"risk"`
	State     StateConfig     `yaml:"state"`
	Journal   JournalConfig   `yaml:"journal"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Timescale TimescaleConfig `yaml:"timescale"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type DatafeedConfig struct {
	Mode          string        `yaml:"mode"`
	WSURL         string        `yaml:"ws_url"`
	RESTURL       string        `yaml:"rest_url"`
	OrderbookPath string        `yaml:"orderbook_path"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	BackoffMax    time.Duration `yaml:"backoff_max"`
}

type ExecutionConfig struct {
	RESTURL         string        `yaml:"rest_url"`
	OrderPath       string        `yaml:"order_path"`
	OrderStatusPath string        `yaml:"order_status_path"`
	CancelPath      string        `yaml:"cancel_path"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	OrderTTL        time.Duration `yaml:"order_ttl"`
	MaxRequotes     int           `yaml:"max_requotes"`
	SlippageBps     float64       `yaml:"slippage_bps"`
}

type StrategyConfig struct {
	TriggerMode       string        `yaml:"trigger_mode"`
	MoveWindow        time.Duration `yaml:"move_window"`
	MovePctThreshold  float64       `yaml:"move_pct_threshold"`
	SumTarget         float64       `yaml:"sum_target"`
	SumTargetMax      float64       `yaml:"sum_target_max"`
	ProfitLockBps     float64       `yaml:"profit_lock_bps"`
	Leg2Timeout       time.Duration `yaml:"leg2_timeout"`
	Leg2TimeoutAction string        `yaml:"leg2_timeout_action"`
}

type RiskConfig struct {
	BankrollUSD            float64       `yaml:"bankroll_usd"`
	MaxUSDPerLeg           float64       `yaml:"max_usd_per_leg"`
	MaxActivePositions     int           `yaml:"max_active_positions"`
	Cooldown               time.Duration `yaml:"cooldown"`
	MaxOrdersPerHour       int           `yaml:"max_orders_per_hour"`
	DailyLossLimitUSD      float64       `yaml:"daily_loss_limit_usd"`
	CircuitBreakerFailures int           `yaml:"circuit_breaker_failures"`
	CircuitBreakerCooldown time.Duration `yaml:"circuit_breaker_cooldown"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type JournalConfig struct {
	Dir string `yaml:"dir"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type TelegramConfig struct {
	Enabled                bool          `yaml:"enabled"`
	Token                  string        `yaml:"token"`
	ChatID                 string        `yaml:"chat_id"`
	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

// applyEnvOverrides lets secrets stay out of the yaml file.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PM_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("PM_TELEGRAM_CHAT_ID")); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := strings.TrimSpace(os.Getenv("PM_TIMESCALE_DSN")); v != "" {
		cfg.Timescale.DSN = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Market == "" {
		cfg.Market = "BTC-15M"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Datafeed.Mode == "" {
		cfg.Datafeed.Mode = "websocket"
	}
	if cfg.Datafeed.WSURL == "" {
		cfg.Datafeed.WSURL = "wss://clob.polymarket.com/ws"
	}
	if cfg.Datafeed.RESTURL == "" {
		cfg.Datafeed.RESTURL = "https://clob.polymarket.com"
	}
	if cfg.Datafeed.OrderbookPath == "" {
		cfg.Datafeed.OrderbookPath = "/book"
	}
	if cfg.Datafeed.PollInterval == 0 {
		cfg.Datafeed.PollInterval = time.Second
	}
	if cfg.Datafeed.BackoffMax == 0 {
		cfg.Datafeed.BackoffMax = 15 * time.Second
	}
	if cfg.Execution.RESTURL == "" {
		cfg.Execution.RESTURL = cfg.Datafeed.RESTURL
	}
	if cfg.Execution.OrderPath == "" {
		cfg.Execution.OrderPath = "/orders"
	}
	if cfg.Execution.OrderStatusPath == "" {
		cfg.Execution.OrderStatusPath = "/orders/{order_id}"
	}
	if cfg.Execution.CancelPath == "" {
		cfg.Execution.CancelPath = "/orders/{order_id}"
	}
	if cfg.Execution.RequestTimeout == 0 {
		cfg.Execution.RequestTimeout = 10 * time.Second
	}
	if cfg.Execution.OrderTTL == 0 {
		cfg.Execution.OrderTTL = 15 * time.Second
	}
	if cfg.Execution.MaxRequotes == 0 {
		cfg.Execution.MaxRequotes = 1
	}
	if cfg.Execution.SlippageBps == 0 {
		cfg.Execution.SlippageBps = 5
	}
	if cfg.Strategy.TriggerMode == "" {
		cfg.Strategy.TriggerMode = "dump"
	}
	if cfg.Strategy.MoveWindow == 0 {
		cfg.Strategy.MoveWindow = 3 * time.Second
	}
	if cfg.Strategy.MovePctThreshold == 0 {
		cfg.Strategy.MovePctThreshold = 10
	}
	if cfg.Strategy.SumTarget == 0 {
		cfg.Strategy.SumTarget = 0.95
	}
	if cfg.Strategy.SumTargetMax == 0 {
		cfg.Strategy.SumTargetMax = 0.99
	}
	if cfg.Strategy.Leg2Timeout == 0 {
		cfg.Strategy.Leg2Timeout = 180 * time.Second
	}
	if cfg.Strategy.Leg2TimeoutAction == "" {
		cfg.Strategy.Leg2TimeoutAction = "defensive_hedge"
	}
	if cfg.Risk.BankrollUSD == 0 {
		cfg.Risk.BankrollUSD = 50
	}
	if cfg.Risk.MaxUSDPerLeg == 0 {
		cfg.Risk.MaxUSDPerLeg = 1.5
	}
	if cfg.Risk.MaxActivePositions == 0 {
		cfg.Risk.MaxActivePositions = 1
	}
	if cfg.Risk.Cooldown == 0 {
		cfg.Risk.Cooldown = 120 * time.Second
	}
	if cfg.Risk.MaxOrdersPerHour == 0 {
		cfg.Risk.MaxOrdersPerHour = 30
	}
	if cfg.Risk.DailyLossLimitUSD == 0 {
		cfg.Risk.DailyLossLimitUSD = 5
	}
	if cfg.Risk.CircuitBreakerFailures == 0 {
		cfg.Risk.CircuitBreakerFailures = 3
	}
	if cfg.Risk.CircuitBreakerCooldown == 0 {
		cfg.Risk.CircuitBreakerCooldown = 30 * time.Minute
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/pm-dip-bot.db"
	}
	if cfg.Journal.Dir == "" {
		cfg.Journal.Dir = "logs"
	}
	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 3 * time.Second
	}
}

func validate(cfg *Config) error {
	switch cfg.Datafeed.Mode {
	case "websocket", "polling":
	default:
		return errors.New("datafeed.mode must be websocket or polling")
	}
	switch cfg.Strategy.TriggerMode {
	case "dump", "pump":
	default:
		return errors.New("strategy.trigger_mode must be dump or pump")
	}
	switch cfg.Strategy.Leg2TimeoutAction {
	case "defensive_hedge", "skip":
	default:
		return errors.New("strategy.leg2_timeout_action must be defensive_hedge or skip")
	}
	if cfg.Strategy.MovePctThreshold <= 0 {
		return errors.New("strategy.move_pct_threshold must be > 0")
	}
	if cfg.Strategy.SumTargetMax < cfg.Strategy.SumTarget {
		return errors.New("strategy.sum_target_max must be >= strategy.sum_target")
	}
	if cfg.Risk.BankrollUSD <= 0 {
		return errors.New("risk.bankroll_usd must be > 0")
	}
	if cfg.Risk.MaxUSDPerLeg <= 0 {
		return errors.New("risk.max_usd_per_leg must be > 0")
	}
	if cfg.Risk.MaxUSDPerLeg > cfg.Risk.BankrollUSD {
		return errors.New("risk.max_usd_per_leg exceeds risk.bankroll_usd")
	}
	if cfg.Execution.MaxRequotes < 0 {
		return errors.New("execution.max_requotes must be >= 0")
	}
	if cfg.Telegram.Enabled && (strings.TrimSpace(cfg.Telegram.Token) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "") {
		return errors.New("telegram.enabled requires token and chat_id")
	}
	return nil
}
