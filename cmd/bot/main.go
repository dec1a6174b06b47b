package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pm-dip-bot/internal/app"
	"pm-dip-bot/internal/config"
	"pm-dip-bot/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "simulate fills instead of trading")
	marketSlug := flag.String("market", "", "override configured market slug")
	datafeedMode := flag.String("datafeed-mode", "", "override datafeed mode (websocket or polling)")
	sumTarget := flag.Float64("sum-target", 0, "override strategy sum target")
	movePct := flag.Float64("move-pct-threshold", 0, "override movement threshold percent")
	maxPerLeg := flag.Float64("max-usd-per-leg", 0, "override per-leg USD budget")
	logLevel := flag.String("log-level", "", "override log level")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if *marketSlug != "" {
		cfg.Market = *marketSlug
	}
	if *datafeedMode != "" {
		cfg.Datafeed.Mode = *datafeedMode
	}
	if *sumTarget > 0 {
		cfg.Strategy.SumTarget = *sumTarget
	}
	if *movePct > 0 {
		cfg.Strategy.MovePctThreshold = *movePct
	}
	if *maxPerLeg > 0 {
		cfg.Risk.MaxUSDPerLeg = *maxPerLeg
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	log := logging.New(cfg.Log)
	log.Info("config loaded", zap.String("path", *configPath))

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		os.Exit(1)
	}
	log.Info("app initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && err != context.Canceled {
		log.Error("app terminated", zap.Error(err))
		os.Exit(1)
	}
}
