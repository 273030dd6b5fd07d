// streamtest connects to the Primary WebSocket and prints decoded frames to
// the console.
// Usage: go run ./cmd/streamtest --config configs/gatherer.local.yaml
//
// Credentials come from api.user and api.password (usually ${PRIMARY_USER}
// and ${PRIMARY_PASSWORD} in the config file).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/rofex-data/internal/auth"
	"github.com/rickgao/rofex-data/internal/config"
	"github.com/rickgao/rofex-data/internal/connection"
	"github.com/rickgao/rofex-data/internal/router"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.example.yaml", "path to config file")
	symbols := flag.String("symbols", "", "comma-separated symbols; defaults to stream.symbols")
	orders := flag.Bool("orders", false, "also subscribe to order reports for api.account")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	subs := cfg.Stream.Symbols
	if *symbols != "" {
		subs = strings.Split(*symbols, ",")
	}
	if len(subs) == 0 && !*orders {
		logger.Error("nothing to subscribe to: set stream.symbols, -symbols or -orders")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	creds, err := auth.LoadCredentials(cfg.API.User, cfg.API.Password)
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}
	logger.Info("using API credentials", "user", creds.User)

	feedCfg := connection.FeedConfig{
		WSURL:             cfg.API.WSURL,
		Symbols:           subs,
		MarketID:          cfg.Stream.MarketID,
		ReconnectBaseWait: cfg.Stream.ReconnectBaseDelay,
		ReconnectMaxWait:  cfg.Stream.ReconnectMaxDelay,
		PingTimeout:       cfg.Stream.PingTimeout,
		WriteTimeout:      cfg.Stream.WriteTimeout,
		MessageBufferSize: 10000,
	}
	if *orders {
		feedCfg.Account = cfg.API.Account
	}
	feed := connection.NewFeed(feedCfg, auth.NewTokenSource(cfg.API.RestURL, *creds, nil), logger)

	logger.Info("starting feed", "symbols", len(subs), "orders", *orders)
	if err := feed.Start(ctx); err != nil {
		logger.Error("failed to start feed", "error", err)
		os.Exit(1)
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := feed.Stats()
				logger.Info("stats",
					"connected", st.Connected,
					"conn_id", st.ConnID,
					"received", st.Received,
					"dropped", st.Dropped,
					"reconnects", st.Reconnects,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")
	printEvents(ctx, feed.Messages(), *verbose, logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	feed.Stop(shutdownCtx)
	logger.Info("shutdown complete")
}

func printEvents(ctx context.Context, msgs <-chan connection.RawMessage, verbose bool, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				return
			}
			ev, err := router.Decode(raw.Data)
			if err != nil {
				logger.Warn("decode failed", "error", err, "frame", string(raw.Data))
				continue
			}
			printEvent(ev, verbose)
		}
	}
}

func printEvent(ev router.Event, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(ev, "", "  ")
		fmt.Printf("[%T] %s\n", ev, data)
		return
	}

	switch e := ev.(type) {
	case router.QuoteEvent:
		fmt.Printf("[MD] symbol=%s bid=%s ask=%s last=%s volume=%s\n",
			e.Symbol, fmtPrice(e.Update.Bid), fmtPrice(e.Update.Ask), fmtPrice(e.Update.Last), fmtPrice(e.Update.Volume))
	case router.ExecutionEvent:
		x := e.Execution
		fmt.Printf("[OR] order=%s exec=%s symbol=%s side=%s status=%s filled=%s/%s price=%s\n",
			x.OrderID, x.ExecutionID, x.Symbol, x.Side, x.Status, x.FilledQty, x.Quantity, x.Price)
	case router.ControlEvent:
		fmt.Printf("[CTRL] type=%s\n", e.Type)
	}
}

func fmtPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *p)
}
