package config

import (
	"time"

	"github.com/google/uuid"
)

// Default values for optional configuration fields.
const (
	DefaultRestURL            = "https://api.remarkets.primary.com.ar"
	DefaultWSURL              = "wss://api.remarkets.primary.com.ar/"
	DefaultAPITimeout         = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultCacheDir           = ".cache"
	DefaultCacheTTL           = 30 * time.Minute
	DefaultFetchTimeout       = 30 * time.Second
	DefaultSnapshotBackend    = "file"
	DefaultRedisKey           = "rofex:instruments"
	DefaultMarketID           = "ROFX"
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultPingTimeout        = 60 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultStreamBufferSize   = 10000
	DefaultLedgerSink         = "file"
	DefaultLedgerFilePath     = "executions.json"
	DefaultSyncInterval       = 20 * time.Second
	MinSyncInterval           = 10 * time.Second
	DefaultLedgerBatchSize    = 500
	MaxLedgerBatchSize        = 10000
	DefaultLedgerWriteTimeout = 30 * time.Second
	DefaultFlushInterval      = 3 * time.Second
	MinFlushInterval          = 100 * time.Millisecond
	MaxFlushInterval          = 60 * time.Second
	DefaultHealthPort         = 8080
	DefaultStatsInterval      = time.Minute
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

func (c *GathererConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = "gatherer-" + uuid.NewString()[:8]
	}

	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Database defaults
	if c.Database.Enabled() {
		applyDBDefaults(&c.Database)
	}

	// Cache defaults
	if c.Cache.Dir == "" {
		c.Cache.Dir = DefaultCacheDir
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.FetchTimeout == 0 {
		c.Cache.FetchTimeout = DefaultFetchTimeout
	}
	if c.Cache.SnapshotBackend == "" {
		c.Cache.SnapshotBackend = DefaultSnapshotBackend
	}
	if c.Cache.RedisKey == "" {
		c.Cache.RedisKey = DefaultRedisKey
	}

	// Stream defaults
	if c.Stream.MarketID == "" {
		c.Stream.MarketID = DefaultMarketID
	}
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.PingTimeout == 0 {
		c.Stream.PingTimeout = DefaultPingTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBufferSize
	}

	// Ledger defaults
	if c.Ledger.Sink == "" {
		c.Ledger.Sink = DefaultLedgerSink
	}
	if c.Ledger.FilePath == "" {
		c.Ledger.FilePath = DefaultLedgerFilePath
	}
	if c.Ledger.SyncInterval == 0 {
		c.Ledger.SyncInterval = DefaultSyncInterval
	}
	if c.Ledger.BatchSize == 0 {
		c.Ledger.BatchSize = DefaultLedgerBatchSize
	}
	if c.Ledger.WriteTimeout == 0 {
		c.Ledger.WriteTimeout = DefaultLedgerWriteTimeout
	}

	// Quotes defaults
	if c.Quotes.FlushInterval == 0 {
		c.Quotes.FlushInterval = DefaultFlushInterval
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Health.StatsInterval == 0 {
		c.Health.StatsInterval = DefaultStatsInterval
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
