package writer

import "time"

// WriterConfig holds quote writer configuration.
type WriterConfig struct {
	// FlushInterval is the time between flushes of dirty rows.
	FlushInterval time.Duration

	// WriteTimeout bounds one flush.
	WriteTimeout time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		FlushInterval: 3 * time.Second,
		WriteTimeout:  10 * time.Second,
	}
}

// WriterMetrics are cumulative quote writer counts.
type WriterMetrics struct {
	Signals int64 `json:"signals"`
	Upserts int64 `json:"upserts"`
	Errors  int64 `json:"errors"`
	Flushes int64 `json:"flushes"`
}
