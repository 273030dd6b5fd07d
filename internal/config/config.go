package config

import "time"

// GathererConfig is the root configuration for a gatherer instance.
type GathererConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Database DBConfig       `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Cache    CacheConfig    `yaml:"cache"`
	Stream   StreamConfig   `yaml:"stream"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Quotes   QuotesConfig   `yaml:"quotes"`
	Health   HealthConfig   `yaml:"health"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this gatherer.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds broker REST and WebSocket settings.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	User       string        `yaml:"user"`
	Password   string        `yaml:"password"`
	Account    string        `yaml:"account"` // Account whose executions are reconciled
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// DBConfig holds a single database connection. An empty Host disables Postgres.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether a database host is configured.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}

// RedisConfig holds the shared snapshot store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig holds instrument cache settings.
type CacheConfig struct {
	Dir             string        `yaml:"dir"`
	TTL             time.Duration `yaml:"ttl"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	SnapshotBackend string        `yaml:"snapshot_backend"` // "file" or "redis"
	RedisKey        string        `yaml:"redis_key"`
}

// StreamConfig holds market data stream settings.
type StreamConfig struct {
	Symbols            []string      `yaml:"symbols"`
	MarketID           string        `yaml:"market_id"`
	OrderReports       bool          `yaml:"order_reports"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// LedgerConfig holds execution ledger settings.
type LedgerConfig struct {
	Sink            string        `yaml:"sink"` // "postgres" or "file"
	FilePath        string        `yaml:"file_path"`
	DisableRESTSync bool          `yaml:"disable_rest_sync"`
	SyncInterval    time.Duration `yaml:"sync_interval"`
	BatchSize       int           `yaml:"batch_size"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
}

// QuotesConfig holds quote table writer settings.
type QuotesConfig struct {
	Persist       bool          `yaml:"persist"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// HealthConfig holds the health/stats HTTP server settings.
type HealthConfig struct {
	Port          int           `yaml:"port"`
	StatsInterval time.Duration `yaml:"stats_interval"`
}

// LoggingConfig holds slog handler settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
