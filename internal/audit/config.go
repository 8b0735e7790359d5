// Package audit implements C8: the append-only, schema-versioned audit log
// (spec §3.6, §4.8). A single background writer goroutine consumes records
// from a bounded queue, so producers (the executor) never block on durable
// persistence beyond the queue's own backpressure window.
package audit

import (
	"fmt"
	"io"
	"os"
)

// Config controls whether auditing is enabled, where records are written,
// how much of the request/response is captured, and how long records are
// retained (spec §4.8).
type Config struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// LogFile is the destination path; empty means stdout.
	LogFile string `json:"log_file,omitempty" yaml:"log_file,omitempty"`

	// IncludeRequestData/IncludeResponseData gate whether input_redacted/
	// output_redacted_summary are populated at all, independent of the
	// per-field redaction WalkSensitive always applies.
	IncludeRequestData  bool `json:"include_request_data" yaml:"include_request_data"`
	IncludeResponseData bool `json:"include_response_data" yaml:"include_response_data"`

	// QueueCapacity bounds the writer's backlog before Enqueue starts
	// blocking (spec §4.8 backpressure).
	QueueCapacity int `json:"queue_capacity,omitempty" yaml:"queue_capacity,omitempty"`

	// RetentionDays is the horizon records are kept for, per schema (spec
	// §3.6). The sweep applies it to every record; there is no per-endpoint
	// override.
	RetentionDays int `json:"retention_days,omitempty" yaml:"retention_days,omitempty"`
}

// DefaultConfig returns a workable default: auditing enabled, a bounded
// queue, and 30 days of retention.
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		QueueCapacity: 1024,
		RetentionDays: 30,
	}
}

// GetLogWriter opens LogFile for append, or returns os.Stdout when LogFile
// is unset.
func (c *Config) GetLogWriter() (io.Writer, error) {
	if c == nil || c.LogFile == "" {
		return os.Stdout, nil
	}
	f, err := os.OpenFile(c.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return f, nil
}
