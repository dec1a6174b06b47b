// Command check validates a deployment without trading: it loads the env and
// config, derives the signing address when a key is present, and optionally
// fetches one order book to confirm connectivity and parsing.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"pm-dip-bot/internal/config"
	"pm-dip-bot/internal/feed"
	"pm-dip-bot/internal/logging"
	"pm-dip-bot/internal/pm/auth"
	"pm-dip-bot/internal/pm/rest"
)

const polygonChainID = 137

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	fetchBook := flag.Bool("fetch-book", false, "fetch one order book from the REST API")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	fmt.Printf("market:              %s\n", cfg.Market)
	fmt.Printf("dry_run:             %t\n", cfg.DryRun)
	fmt.Printf("datafeed_mode:       %s\n", cfg.Datafeed.Mode)
	fmt.Printf("ws_url:              %s\n", cfg.Datafeed.WSURL)
	fmt.Printf("rest_url:            %s\n", cfg.Execution.RESTURL)
	fmt.Printf("trigger_mode:        %s\n", cfg.Strategy.TriggerMode)
	fmt.Printf("move_pct_threshold:  %.2f over %s\n", cfg.Strategy.MovePctThreshold, cfg.Strategy.MoveWindow)
	fmt.Printf("sum_target:          %.4f (max %.4f)\n", cfg.Strategy.SumTarget, cfg.Strategy.SumTargetMax)
	fmt.Printf("leg2_timeout:        %s (%s)\n", cfg.Strategy.Leg2Timeout, cfg.Strategy.Leg2TimeoutAction)
	fmt.Printf("max_usd_per_leg:     %.2f of %.2f bankroll\n", cfg.Risk.MaxUSDPerLeg, cfg.Risk.BankrollUSD)
	fmt.Printf("daily_loss_limit:    %.2f\n", cfg.Risk.DailyLossLimitUSD)

	if key := strings.TrimSpace(strings.TrimPrefix(os.Getenv("PM_PRIVATE_KEY"), "0x")); key != "" {
		signer, err := auth.NewSigner(key, polygonChainID)
		if err != nil {
			fatal(fmt.Errorf("PM_PRIVATE_KEY invalid: %w", err))
		}
		fmt.Printf("signer_address:      %s\n", signer.Address().Hex())
	} else {
		fmt.Println("signer_address:      (no PM_PRIVATE_KEY set)")
	}

	if !*fetchBook {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	client := rest.New(cfg.Datafeed.RESTURL, 10*time.Second, log)
	var raw json.RawMessage
	params := url.Values{"market": {cfg.Market}}
	if err := client.Get(ctx, cfg.Datafeed.OrderbookPath, params, &raw); err != nil {
		fatal(fmt.Errorf("book fetch failed: %w", err))
	}
	quote, err := feed.ParseBookPayload(raw, time.Now().UTC())
	if err != nil {
		fmt.Printf("book fetched but not parseable as a single side: %v\n", err)
		fmt.Printf("raw: %s\n", truncate(string(raw), 512))
		return
	}
	fmt.Printf("book %s: bid %.4f ask %.4f spread %.4f liquidity %.2f\n",
		quote.Side, quote.BestBid, quote.BestAsk, quote.Spread, quote.Liquidity)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "check failed: %v\n", err)
	os.Exit(1)
}
