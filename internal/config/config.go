// Package config loads server configuration from a YAML file, an optional
// .env file and DRAGONVEIN_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// DRAGONVEIN_DATABASE_URL for database.url.
const EnvPrefix = "DRAGONVEIN"

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Event    EventConfig    `mapstructure:"event"`
	Store    StoreConfig    `mapstructure:"store"`
}

type ServerConfig struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

type HTTPConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// GRPCConfig configures the health endpoint. An empty address disables it.
type GRPCConfig struct {
	Address              string        `mapstructure:"address"`
	MaxConcurrentStreams int           `mapstructure:"max_concurrent_streams"`
	HealthInterval       time.Duration `mapstructure:"health_interval"`
}

type WebSocketConfig struct {
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	SendBuffer   int           `mapstructure:"send_buffer"`
}

// DatabaseConfig configures the Postgres pool and transaction policy.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// Isolation is serializable, repeatable_read or read_committed.
	Isolation    string        `mapstructure:"isolation"`
	TxMaxRetries int           `mapstructure:"tx_max_retries"`
	LockTimeout  time.Duration `mapstructure:"lock_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AuthConfig struct {
	// AdminPasswordHash is a bcrypt hash. Empty disables admin routes.
	AdminPasswordHash string `mapstructure:"admin_password_hash"`
}

type EventConfig struct {
	SupplyManifest string `mapstructure:"supply_manifest"`
	FragmentBatch  int    `mapstructure:"fragment_batch"`
	BindAttempts   int    `mapstructure:"bind_attempts"`
}

type StoreConfig struct {
	// Driver is postgres or memory.
	Driver string `mapstructure:"driver"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http.address", ":8080")
	v.SetDefault("server.http.read_timeout", 10*time.Second)
	v.SetDefault("server.http.write_timeout", 10*time.Second)
	v.SetDefault("server.http.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.http.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("server.grpc.address", ":9090")
	v.SetDefault("server.grpc.max_concurrent_streams", 100)
	v.SetDefault("server.grpc.health_interval", 10*time.Second)

	v.SetDefault("server.websocket.write_timeout", 10*time.Second)
	v.SetDefault("server.websocket.ping_interval", 30*time.Second)
	v.SetDefault("server.websocket.send_buffer", 32)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.isolation", "serializable")
	v.SetDefault("database.tx_max_retries", 5)
	v.SetDefault("database.lock_timeout", 2*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("auth.admin_password_hash", "")

	v.SetDefault("event.supply_manifest", "config/supply.yaml")
	v.SetDefault("event.fragment_batch", 3)
	v.SetDefault("event.bind_attempts", 5)

	v.SetDefault("store.driver", "postgres")
}

// Load reads configuration from path. A missing file is not an error; the
// defaults and environment still apply.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres store")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}

	switch c.Database.Isolation {
	case "serializable", "repeatable_read", "read_committed":
	default:
		return fmt.Errorf("unknown database.isolation %q", c.Database.Isolation)
	}
	if c.Database.TxMaxRetries < 1 {
		return errors.New("database.tx_max_retries must be at least 1")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return errors.New("database.min_conns exceeds database.max_conns")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}

	if c.Server.HTTP.Address == "" {
		return errors.New("server.http.address is required")
	}
	return nil
}
