package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func defaultedConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := defaultedConfig()
	if cfg.Market != "BTC-15M" {
		t.Fatalf("expected default market, got %q", cfg.Market)
	}
	if cfg.Datafeed.Mode != "websocket" {
		t.Fatalf("expected websocket datafeed default, got %q", cfg.Datafeed.Mode)
	}
	if cfg.Strategy.MoveWindow != 3*time.Second {
		t.Fatalf("expected 3s move window default, got %v", cfg.Strategy.MoveWindow)
	}
	if cfg.Strategy.SumTarget != 0.95 || cfg.Strategy.SumTargetMax != 0.99 {
		t.Fatalf("unexpected sum target defaults: %v/%v", cfg.Strategy.SumTarget, cfg.Strategy.SumTargetMax)
	}
	if cfg.Strategy.Leg2TimeoutAction != "defensive_hedge" {
		t.Fatalf("expected defensive_hedge default, got %q", cfg.Strategy.Leg2TimeoutAction)
	}
	if cfg.Risk.MaxActivePositions != 1 {
		t.Fatalf("expected single position default, got %d", cfg.Risk.MaxActivePositions)
	}
	if cfg.Execution.OrderTTL != 15*time.Second {
		t.Fatalf("expected 15s order ttl default, got %v", cfg.Execution.OrderTTL)
	}
}

func TestExecutionRESTURLDerivedFromDatafeed(t *testing.T) {
	cfg := &Config{Datafeed: DatafeedConfig{RESTURL: "https://example.com"}}
	applyDefaults(cfg)
	if cfg.Execution.RESTURL != "https://example.com" {
		t.Fatalf("expected derived execution rest url, got %q", cfg.Execution.RESTURL)
	}
}

func TestValidateRejectsBadDatafeedMode(t *testing.T) {
	cfg := defaultedConfig()
	cfg.Datafeed.Mode = "carrier-pigeon"
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for bad datafeed mode")
	}
}

func TestValidateRejectsBadTriggerMode(t *testing.T) {
	cfg := defaultedConfig()
	cfg.Strategy.TriggerMode = "sideways"
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for bad trigger mode")
	}
}

func TestValidateRejectsBadTimeoutAction(t *testing.T) {
	cfg := defaultedConfig()
	cfg.Strategy.Leg2TimeoutAction = "panic"
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for bad leg2 timeout action")
	}
}

func TestValidateRejectsSumTargetMaxBelowTarget(t *testing.T) {
	cfg := defaultedConfig()
	cfg.Strategy.SumTarget = 0.95
	cfg.Strategy.SumTargetMax = 0.90
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for sum_target_max below sum_target")
	}
}

func TestValidateRejectsLegBudgetOverBankroll(t *testing.T) {
	cfg := defaultedConfig()
	cfg.Risk.BankrollUSD = 1
	cfg.Risk.MaxUSDPerLeg = 2
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for per-leg budget over bankroll")
	}
}

func TestValidateRejectsTelegramEnabledWithoutConfig(t *testing.T) {
	t.Setenv("PM_TELEGRAM_TOKEN", "")
	t.Setenv("PM_TELEGRAM_CHAT_ID", "")
	cfg := defaultedConfig()
	cfg.Telegram.Enabled = true
	applyEnvOverrides(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing telegram token/chat_id")
	}
}

func TestTelegramEnvOverridesConfig(t *testing.T) {
	t.Setenv("PM_TELEGRAM_TOKEN", "env-token")
	t.Setenv("PM_TELEGRAM_CHAT_ID", "123")
	cfg := defaultedConfig()
	cfg.Telegram = TelegramConfig{Enabled: true, Token: "config-token", ChatID: "999"}
	applyEnvOverrides(cfg)
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("expected env token override, got %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.ChatID != "123" {
		t.Fatalf("expected env chat id override, got %q", cfg.Telegram.ChatID)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("expected valid config with env overrides, got %v", err)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "" +
		"market: ETH-1H\n" +
		"dry_run: true\n" +
		"strategy:\n" +
		"  trigger_mode: pump\n" +
		"  move_pct_threshold: 7.5\n" +
		"risk:\n" +
		"  max_usd_per_leg: 2.5\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Market != "ETH-1H" || !cfg.DryRun {
		t.Fatalf("top-level fields not parsed: %+v", cfg)
	}
	if cfg.Strategy.TriggerMode != "pump" || cfg.Strategy.MovePctThreshold != 7.5 {
		t.Fatalf("strategy fields not parsed: %+v", cfg.Strategy)
	}
	if cfg.Risk.MaxUSDPerLeg != 2.5 {
		t.Fatalf("risk fields not parsed: %+v", cfg.Risk)
	}
	// Untouched fields still receive defaults.
	if cfg.Strategy.SumTarget != 0.95 {
		t.Fatalf("defaults not applied: %+v", cfg.Strategy)
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
