package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerEndpointAddr)
	assert.Equal(t, "posoffline.db", c.DatabasePath)
	assert.Equal(t, 60*time.Second, c.SyncInterval)
	assert.Equal(t, 100, c.SyncBatchSize)
	assert.Equal(t, 30*24*time.Hour, c.Retention)
	assert.Equal(t, 5000, c.QueueCapacity)
	assert.Equal(t, 5, c.QueueMaxAttempts)
	assert.Equal(t, 30*time.Second, c.ProbeInterval)
	assert.Equal(t, 5*time.Second, c.ProbeTimeout)
	assert.Equal(t, 12*time.Hour, c.SessionTTL)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerEndpointAddr)
	assert.Equal(t, 60*time.Second, cfg.SyncInterval)
}

func TestParseJson_OverlaysOnlyProvidedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"server_endpoint_addr": "https://pos.example.com",
		"sync_interval": "15s",
		"queue_capacity": 200
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	orig := os.Args
	os.Args = []string{"posd", "-c", path}
	t.Cleanup(func() { os.Args = orig })

	var cfg Config
	cfg.LoadDefaults()
	parseJson(&cfg)

	assert.Equal(t, "https://pos.example.com", cfg.ServerEndpointAddr)
	assert.Equal(t, 15*time.Second, cfg.SyncInterval)
	assert.Equal(t, 200, cfg.QueueCapacity)

	// Untouched fields keep their defaults.
	assert.Equal(t, "posoffline.db", cfg.DatabasePath)
	assert.Equal(t, 5, cfg.QueueMaxAttempts)
}

func TestParseJson_DurationAsNanoseconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"probe_timeout": 2000000000}`), 0o600))

	orig := os.Args
	os.Args = []string{"posd", "-config", path}
	t.Cleanup(func() { os.Args = orig })

	var cfg Config
	cfg.LoadDefaults()
	parseJson(&cfg)

	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout)
}

func TestParseFlags(t *testing.T) {
	orig := os.Args
	os.Args = []string{"posd", "-a", "https://pos.example.com", "-i", "20", "-b", "25", "-other", "ignored"}
	t.Cleanup(func() { os.Args = orig })

	var cfg Config
	cfg.LoadDefaults()
	parseFlags(&cfg)

	assert.Equal(t, "https://pos.example.com", cfg.ServerEndpointAddr)
	assert.Equal(t, 20*time.Second, cfg.SyncInterval)
	assert.Equal(t, 25, cfg.SyncBatchSize)
}
