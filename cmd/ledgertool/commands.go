package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rickgao/rofex-data/internal/api"
	"github.com/rickgao/rofex-data/internal/auth"
	"github.com/rickgao/rofex-data/internal/config"
	"github.com/rickgao/rofex-data/internal/database"
	"github.com/rickgao/rofex-data/internal/instrument"
	"github.com/rickgao/rofex-data/internal/ledger"
	"github.com/rickgao/rofex-data/internal/poller"
	"github.com/rickgao/rofex-data/internal/writer"
)

var commands = []subcommands.Command{
	&dedupeCmd{},
	&syncCmd{},
	&cacheStatsCmd{},
	&cacheClearCmd{},
}

// env holds what every command needs from the config file.
type env struct {
	cfg    *config.GathererConfig
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func loadEnv(ctx context.Context, needDB bool) (*env, error) {
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		return nil, err
	}
	e := &env{
		cfg:    cfg,
		logger: cfg.Logging.NewLogger(os.Stderr),
	}
	if needDB && cfg.Database.Enabled() {
		e.pool, err = database.Connect(ctx, cfg.Database, cfg.Instance.ID+"-ledgertool")
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
	}
	return e, nil
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

func (e *env) ledger() (*ledger.Ledger, error) {
	var sink ledger.Sink
	switch e.cfg.Ledger.Sink {
	case "postgres":
		if e.pool == nil {
			return nil, fmt.Errorf("postgres ledger sink needs database settings")
		}
		sink = writer.NewPostgresSink(e.pool)
	default:
		sink = writer.NewFileSink(e.cfg.Ledger.FilePath)
	}
	return ledger.New(ledger.Config{WriteTimeout: e.cfg.Ledger.WriteTimeout}, sink, e.logger), nil
}

func (e *env) snapshotStore() (instrument.SnapshotStore, func()) {
	if e.cfg.Cache.SnapshotBackend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     e.cfg.Redis.Addr,
			Password: e.cfg.Redis.Password,
			DB:       e.cfg.Redis.DB,
		})
		return instrument.NewRedisStore(client, e.cfg.Cache.RedisKey), func() { client.Close() }
	}
	return instrument.NewFileStore(e.cfg.Cache.Dir), func() {}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type dedupeCmd struct{}

func (*dedupeCmd) Name() string     { return "dedupe" }
func (*dedupeCmd) Synopsis() string { return "collapse duplicate execution keys in the ledger" }
func (*dedupeCmd) Usage() string {
	return `ledgertool dedupe

  Reads the whole ledger, keeps the first row for every
  (execution_id, order_id, account) key and writes the table back.
`
}
func (*dedupeCmd) SetFlags(*flag.FlagSet) {}

func (*dedupeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := loadEnv(ctx, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer e.close()

	l, err := e.ledger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	removed, err := l.Compact(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("removed %d duplicate rows\n", removed)
	return subcommands.ExitSuccess
}

type syncCmd struct {
	account string
	timeout time.Duration
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "run one REST execution sync cycle" }
func (*syncCmd) Usage() string {
	return `ledgertool sync [-account <account>] [-timeout <duration>]

  Fetches the account's filled orders and reconciles them into the ledger
  once. Prints the cycle result as JSON.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Account to sync. Defaults to api.account.")
	f.DurationVar(&c.timeout, "timeout", 2*time.Minute, "Overall deadline for the cycle.")
}

func (c *syncCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	e, err := loadEnv(ctx, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer e.close()

	account := c.account
	if account == "" {
		account = e.cfg.API.Account
	}
	if account == "" {
		fmt.Fprintln(os.Stderr, "no account: set api.account or pass -account")
		return subcommands.ExitUsageError
	}

	creds, err := auth.LoadCredentials(e.cfg.API.User, e.cfg.API.Password)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	client := api.NewClient(
		e.cfg.API.RestURL,
		auth.NewTokenSource(e.cfg.API.RestURL, *creds, nil),
		api.WithLogger(e.logger),
		api.WithTimeout(e.cfg.API.Timeout),
	)

	l, err := e.ledger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	s := poller.New(poller.Config{
		BatchSize:    e.cfg.Ledger.BatchSize,
		Account:      account,
		FetchTimeout: e.cfg.API.Timeout,
	}, client, nil, l, e.logger)

	res, err := s.RunCycle(ctx)
	if perr := printJSON(res); perr != nil {
		fmt.Fprintln(os.Stderr, perr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type cacheStatsCmd struct{}

func (*cacheStatsCmd) Name() string     { return "cache-stats" }
func (*cacheStatsCmd) Synopsis() string { return "describe the persisted instrument snapshot" }
func (*cacheStatsCmd) Usage() string {
	return `ledgertool cache-stats

  Prints the snapshot timestamp, instrument count and whether it is still
  within the configured TTL.
`
}
func (*cacheStatsCmd) SetFlags(*flag.FlagSet) {}

func (*cacheStatsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := loadEnv(ctx, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	store, closeStore := e.snapshotStore()
	defer closeStore()

	snap, err := store.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if snap == nil {
		fmt.Println("no snapshot")
		return subcommands.ExitSuccess
	}

	out := struct {
		Timestamp   time.Time         `json:"timestamp"`
		Age         string            `json:"age"`
		Instruments int               `json:"instruments"`
		Valid       bool              `json:"valid"`
		Metadata    map[string]string `json:"metadata,omitempty"`
	}{
		Timestamp:   snap.Timestamp,
		Age:         time.Since(snap.Timestamp).Round(time.Second).String(),
		Instruments: len(snap.Instruments),
		Valid:       snap.Valid(time.Now(), e.cfg.Cache.TTL),
		Metadata:    snap.Metadata,
	}
	if err := printJSON(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type cacheClearCmd struct{}

func (*cacheClearCmd) Name() string     { return "cache-clear" }
func (*cacheClearCmd) Synopsis() string { return "delete the persisted instrument snapshot" }
func (*cacheClearCmd) Usage() string {
	return `ledgertool cache-clear

  Deletes the snapshot so the next gatherer start fetches the instrument
  universe from the origin.
`
}
func (*cacheClearCmd) SetFlags(*flag.FlagSet) {}

func (*cacheClearCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := loadEnv(ctx, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	store, closeStore := e.snapshotStore()
	defer closeStore()

	cache := instrument.NewCache(instrument.Config{TTL: e.cfg.Cache.TTL}, nil, store, e.logger)
	if err := cache.Clear(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println("instrument snapshot cleared")
	return subcommands.ExitSuccess
}
