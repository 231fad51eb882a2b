// Package config assembles runtime settings for the POS terminal daemon
// from defaults, an optional JSON file and command-line flags, in that
// order of precedence.
package config

import "time"

// Config holds runtime settings for the terminal.
type Config struct {
	// ServerEndpointAddr is the base URL of the backend HTTP API.
	ServerEndpointAddr string
	// DatabasePath is the SQLite file backing the local store.
	DatabasePath string

	// SyncInterval is the period of background sync cycles.
	SyncInterval time.Duration
	// SyncBatchSize caps how many transactions one cycle pushes.
	SyncBatchSize int
	// Retention is how long synced transactions and sync error records
	// are kept before cleanup.
	Retention time.Duration

	// QueueCapacity bounds the pending transaction queue.
	QueueCapacity int
	// QueueMaxAttempts is the per-transaction retry ceiling after which a
	// failed item is no longer requeued.
	QueueMaxAttempts int

	// ProbeInterval is the connectivity probe period while reachable.
	ProbeInterval time.Duration
	// ProbeTimeout bounds a single connectivity probe.
	ProbeTimeout time.Duration

	// SessionTTL is how long a session stays restorable without a
	// heartbeat.
	SessionTTL time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.DatabasePath = "posoffline.db"
	c.SyncInterval = 60 * time.Second
	c.SyncBatchSize = 100
	c.Retention = 30 * 24 * time.Hour
	c.QueueCapacity = 5000
	c.QueueMaxAttempts = 5
	c.ProbeInterval = 30 * time.Second
	c.ProbeTimeout = 5 * time.Second
	c.SessionTTL = 12 * time.Hour
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
