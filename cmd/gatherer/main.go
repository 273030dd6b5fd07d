package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/rofex-data/internal/api"
	"github.com/rickgao/rofex-data/internal/auth"
	"github.com/rickgao/rofex-data/internal/config"
	"github.com/rickgao/rofex-data/internal/connection"
	"github.com/rickgao/rofex-data/internal/database"
	"github.com/rickgao/rofex-data/internal/instrument"
	"github.com/rickgao/rofex-data/internal/ledger"
	"github.com/rickgao/rofex-data/internal/metrics"
	"github.com/rickgao/rofex-data/internal/poller"
	"github.com/rickgao/rofex-data/internal/quotes"
	"github.com/rickgao/rofex-data/internal/router"
	"github.com/rickgao/rofex-data/internal/version"
	"github.com/rickgao/rofex-data/internal/writer"
)

// stopper is any component with a graceful Stop.
type stopper interface {
	Stop(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "configs/gatherer.local.yaml", "path to config file")
	flag.Parse()

	holder, err := config.NewHolder(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := holder.Get()

	logger := cfg.Logging.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting gatherer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	if err := run(holder, logger); err != nil {
		logger.Error("gatherer failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gatherer stopped")
}

func run(holder *config.Holder, logger *slog.Logger) error {
	cfg := holder.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGHUP reloads the config file; SIGINT/SIGTERM shut down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				if err := holder.Refresh(); err != nil {
					logger.Warn("config reload failed", "error", err)
				} else {
					logger.Info("config reloaded; stream and database settings apply on restart")
				}
				continue
			}
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
			return
		}
	}()

	creds, err := auth.LoadCredentials(cfg.API.User, cfg.API.Password)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	tokens := auth.NewTokenSource(cfg.API.RestURL, *creds, nil)

	apiClient := api.NewClient(
		cfg.API.RestURL,
		tokens,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	var pool *pgxpool.Pool
	if cfg.Database.Enabled() {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err = database.Connect(ctx, cfg.Database, cfg.Instance.ID)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		logger.Info("database connected")
	}

	store, closeStore := newSnapshotStore(cfg)
	defer closeStore()

	// Components are stopped in reverse start order, before the pool and store close.
	var started []stopper
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		for i := len(started) - 1; i >= 0; i-- {
			if err := started[i].Stop(shutdownCtx); err != nil {
				logger.Warn("component stop failed", "error", err)
			}
		}
	}()

	cache := instrument.NewCache(instrument.Config{
		TTL:          cfg.Cache.TTL,
		FetchTimeout: cfg.Cache.FetchTimeout,
		InstanceID:   cfg.Instance.ID,
	}, apiClient, store, logger.With("component", "instrument_cache"))
	if err := cache.Start(ctx); err != nil {
		return fmt.Errorf("start instrument cache: %w", err)
	}
	started = append(started, cache)

	symbols, invalid := cache.ValidateSymbols(cfg.Stream.Symbols)
	if len(invalid) > 0 {
		logger.Warn("symbols not in instrument universe, not subscribing", "symbols", invalid)
	}

	tables := quotes.NewTables()

	feedCfg := connection.FeedConfig{
		WSURL:             cfg.API.WSURL,
		Symbols:           symbols,
		MarketID:          cfg.Stream.MarketID,
		ReconnectBaseWait: cfg.Stream.ReconnectBaseDelay,
		ReconnectMaxWait:  cfg.Stream.ReconnectMaxDelay,
		PingTimeout:       cfg.Stream.PingTimeout,
		WriteTimeout:      cfg.Stream.WriteTimeout,
		MessageBufferSize: cfg.Stream.BufferSize,
	}
	if cfg.Stream.OrderReports {
		feedCfg.Account = cfg.API.Account
	}
	feed := connection.NewFeed(feedCfg, tokens, logger.With("component", "feed"))

	rtr := router.NewRouter(router.DefaultRouterConfig(), cache, tables, feed.Messages(), logger.With("component", "router"))
	rtr.Seed(symbols)

	var quoteWriter *writer.QuoteWriter
	if pool != nil && cfg.Quotes.Persist {
		quoteWriter = writer.NewQuoteWriter(writer.WriterConfig{
			FlushInterval: cfg.Quotes.FlushInterval,
		}, tables, pool, logger.With("component", "quote_writer"))
		rtr.SetObserver(quoteWriter)
		if err := quoteWriter.Start(ctx); err != nil {
			return fmt.Errorf("start quote writer: %w", err)
		}
		started = append(started, quoteWriter)
	}

	// Stopped after the router so its final pass sees the last order reports.
	sink := newLedgerSink(cfg, pool)
	led := ledger.New(ledger.Config{WriteTimeout: cfg.Ledger.WriteTimeout}, sink, logger.With("component", "ledger"))

	var source poller.ExecutionSource
	if !cfg.Ledger.DisableRESTSync {
		source = apiClient
	}
	scheduler := poller.New(poller.Config{
		Interval:     cfg.Ledger.SyncInterval,
		BatchSize:    cfg.Ledger.BatchSize,
		Account:      cfg.API.Account,
		FetchTimeout: cfg.API.Timeout,
	}, source, rtr.Executions(), led, logger.With("component", "execution_sync"))
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start execution sync: %w", err)
	}
	started = append(started, scheduler)

	if err := rtr.Start(ctx); err != nil {
		return fmt.Errorf("start router: %w", err)
	}
	started = append(started, rtr)

	if err := feed.Start(ctx); err != nil {
		return fmt.Errorf("start feed: %w", err)
	}
	started = append(started, feed)

	reporter := metrics.NewReporter(cfg.Health.StatsInterval, logger)
	reporter.Register("version", func() any { return version.Get() })
	reporter.Register("instrument_cache", func() any { return cache.Stats() })
	reporter.Register("feed", func() any { return feed.Stats() })
	reporter.Register("router", func() any { return rtr.Stats() })
	reporter.Register("quote_rows", func() any { return tables.Lens() })
	reporter.Register("ledger", func() any { return led.Totals() })
	reporter.Register("execution_sync", func() any { return scheduler.Stats() })
	if quoteWriter != nil {
		reporter.Register("quote_writer", func() any { return quoteWriter.Stats() })
	}
	if err := reporter.Start(ctx); err != nil {
		return fmt.Errorf("start reporter: %w", err)
	}
	started = append(started, reporter)

	deps := handlerDeps{
		cache:    cache,
		feed:     feed,
		tables:   tables,
		reporter: reporter.Handler(),
		logger:   logger,
	}
	if pool != nil {
		deps.db = pool
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           newHandler(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("gatherer running",
		"symbols", len(symbols),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newSnapshotStore builds the instrument snapshot tier from config.
func newSnapshotStore(cfg *config.GathererConfig) (instrument.SnapshotStore, func()) {
	if cfg.Cache.SnapshotBackend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return instrument.NewRedisStore(client, cfg.Cache.RedisKey), func() { client.Close() }
	}
	return instrument.NewFileStore(cfg.Cache.Dir), func() {}
}

// newLedgerSink picks the ledger backend. Validate guarantees a pool for
// the postgres sink.
func newLedgerSink(cfg *config.GathererConfig, pool *pgxpool.Pool) ledger.Sink {
	if cfg.Ledger.Sink == "postgres" && pool != nil {
		return writer.NewPostgresSink(pool)
	}
	return writer.NewFileSink(cfg.Ledger.FilePath)
}
