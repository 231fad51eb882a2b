package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pdcpos/posoffline/internal/flagx"
	"github.com/pdcpos/posoffline/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "60s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	DatabasePath       string         `json:"database_path"`
	SyncInterval       timex.Duration `json:"sync_interval"`
	SyncBatchSize      int            `json:"sync_batch_size"`
	Retention          timex.Duration `json:"retention"`
	QueueCapacity      int            `json:"queue_capacity"`
	QueueMaxAttempts   int            `json:"queue_max_attempts"`
	ProbeInterval      timex.Duration `json:"probe_interval"`
	ProbeTimeout       timex.Duration `json:"probe_timeout"`
	SessionTTL         timex.Duration `json:"session_ttl"`
}

// parseJson overlays cfg with values from the JSON file named by the -c or
// -config flag. No flag, no file, no overlay. Fields absent from the file
// keep their current values. Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.SyncInterval.Duration > 0 {
		cfg.SyncInterval = time.Duration(jc.SyncInterval.Duration)
	}
	if jc.SyncBatchSize > 0 {
		cfg.SyncBatchSize = jc.SyncBatchSize
	}
	if jc.Retention.Duration > 0 {
		cfg.Retention = time.Duration(jc.Retention.Duration)
	}
	if jc.QueueCapacity > 0 {
		cfg.QueueCapacity = jc.QueueCapacity
	}
	if jc.QueueMaxAttempts > 0 {
		cfg.QueueMaxAttempts = jc.QueueMaxAttempts
	}
	if jc.ProbeInterval.Duration > 0 {
		cfg.ProbeInterval = time.Duration(jc.ProbeInterval.Duration)
	}
	if jc.ProbeTimeout.Duration > 0 {
		cfg.ProbeTimeout = time.Duration(jc.ProbeTimeout.Duration)
	}
	if jc.SessionTTL.Duration > 0 {
		cfg.SessionTTL = time.Duration(jc.SessionTTL.Duration)
	}
}
