package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DRAGONVEIN_STORE_DRIVER", "memory")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTP.Address)
	assert.Equal(t, "serializable", cfg.Database.Isolation)
	assert.Equal(t, 5, cfg.Database.TxMaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Database.LockTimeout)
	assert.Equal(t, 3, cfg.Event.FragmentBatch)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  http:
    address: ":9000"
    allowed_origins: ["https://dragonvein.example"]
database:
  url: postgres://file
  isolation: repeatable_read
  lock_timeout: 500ms
logging:
  level: debug
  format: console
event:
  fragment_batch: 4
`)
	t.Setenv("DRAGONVEIN_DATABASE_URL", "postgres://env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.HTTP.Address)
	assert.Equal(t, []string{"https://dragonvein.example"}, cfg.Server.HTTP.AllowedOrigins)
	assert.Equal(t, "postgres://env", cfg.Database.URL)
	assert.Equal(t, "repeatable_read", cfg.Database.Isolation)
	assert.Equal(t, 500*time.Millisecond, cfg.Database.LockTimeout)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 4, cfg.Event.FragmentBatch)
}

func TestLoadFallsBackToDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://plain")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://plain", cfg.Database.URL)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:   ServerConfig{HTTP: HTTPConfig{Address: ":8080"}},
			Database: DatabaseConfig{URL: "postgres://x", Isolation: "serializable", TxMaxRetries: 3, MaxConns: 4},
			Logging:  LoggingConfig{Format: "json"},
			Store:    StoreConfig{Driver: "postgres"},
		}
	}

	cfg := base()
	require.NoError(t, cfg.Validate())

	cases := map[string]func(*Config){
		"missing url":     func(c *Config) { c.Database.URL = "" },
		"unknown driver":  func(c *Config) { c.Store.Driver = "sqlite" },
		"bad isolation":   func(c *Config) { c.Database.Isolation = "snapshot" },
		"zero retries":    func(c *Config) { c.Database.TxMaxRetries = 0 },
		"min above max":   func(c *Config) { c.Database.MinConns = 10 },
		"bad log format":  func(c *Config) { c.Logging.Format = "xml" },
		"no http address": func(c *Config) { c.Server.HTTP.Address = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	mem := base()
	mem.Store.Driver = "memory"
	mem.Database.URL = ""
	assert.NoError(t, mem.Validate())
}
