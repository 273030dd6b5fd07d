package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *GathererConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.RestURL == "" {
		return errors.New("api.rest_url is required")
	}
	if c.API.User == "" {
		return errors.New("api.user is required")
	}
	if c.API.Password == "" {
		return errors.New("api.password is required")
	}
	if (!c.Ledger.DisableRESTSync || c.Stream.OrderReports) && c.API.Account == "" {
		return errors.New("api.account is required when executions are synced")
	}

	if c.Database.Enabled() {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be > 0")
	}
	switch c.Cache.SnapshotBackend {
	case "file":
		if c.Cache.Dir == "" {
			return errors.New("cache.dir is required for the file snapshot backend")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis snapshot backend")
		}
	default:
		return fmt.Errorf("cache.snapshot_backend must be file or redis, got %q", c.Cache.SnapshotBackend)
	}

	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}

	switch c.Ledger.Sink {
	case "postgres":
		if !c.Database.Enabled() {
			return errors.New("database.host is required for the postgres ledger sink")
		}
	case "file":
		if c.Ledger.FilePath == "" {
			return errors.New("ledger.file_path is required for the file ledger sink")
		}
	default:
		return fmt.Errorf("ledger.sink must be postgres or file, got %q", c.Ledger.Sink)
	}
	if c.Ledger.SyncInterval < MinSyncInterval {
		return fmt.Errorf("ledger.sync_interval must be >= %v, got %v", MinSyncInterval, c.Ledger.SyncInterval)
	}
	if c.Ledger.BatchSize < 1 || c.Ledger.BatchSize > MaxLedgerBatchSize {
		return fmt.Errorf("ledger.batch_size must be between 1 and %d, got %d", MaxLedgerBatchSize, c.Ledger.BatchSize)
	}

	if c.Quotes.Persist && !c.Database.Enabled() {
		return errors.New("database.host is required when quotes.persist is set")
	}
	if c.Quotes.FlushInterval < MinFlushInterval || c.Quotes.FlushInterval > MaxFlushInterval {
		return fmt.Errorf("quotes.flush_interval must be between %v and %v, got %v",
			MinFlushInterval, MaxFlushInterval, c.Quotes.FlushInterval)
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
