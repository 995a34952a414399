// Package config loads server settings from an optional YAML file,
// GK_-prefixed environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	HTTPAddr        string        `mapstructure:"http_addr" validate:"required"`
	GRPCAddr        string        `mapstructure:"grpc_addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	Dev             bool          `mapstructure:"dev"`

	Database  DatabaseConfig  `mapstructure:"database"`
	Token     TokenConfig     `mapstructure:"token"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Usage     UsageConfig     `mapstructure:"usage"`
	Lockout   LockoutConfig   `mapstructure:"lockout"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

// DatabaseConfig selects the storage backend. An empty DSN runs in memory.
type DatabaseConfig struct {
	DSN          string        `mapstructure:"dsn"`
	StoreTimeout time.Duration `mapstructure:"store_timeout" validate:"gt=0"`
	MaxConns     int32         `mapstructure:"max_conns" validate:"gte=0"`
}

// TokenConfig tunes issuance. A zero PurgeInterval disables the expired
// token purge.
type TokenConfig struct {
	TTL           time.Duration `mapstructure:"ttl" validate:"gt=0"`
	MaxActive     int           `mapstructure:"max_active" validate:"gte=0"`
	PurgeInterval time.Duration `mapstructure:"purge_interval" validate:"gte=0"`
	PurgeGrace    time.Duration `mapstructure:"purge_grace" validate:"gte=0"`
}

type RateLimitConfig struct {
	Window  time.Duration `mapstructure:"window" validate:"gt=0"`
	IdleTTL time.Duration `mapstructure:"idle_ttl" validate:"gte=0"`
}

type UsageConfig struct {
	Buffer       int           `mapstructure:"buffer" validate:"gte=0"`
	Workers      int           `mapstructure:"workers" validate:"gte=0"`
	BatchSize    int           `mapstructure:"batch_size" validate:"gte=0"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" validate:"gte=0"`
}

type LockoutConfig struct {
	Window      time.Duration `mapstructure:"window" validate:"gt=0"`
	MaxFailures int           `mapstructure:"max_failures" validate:"gte=1"`
	BlockFor    time.Duration `mapstructure:"block_for" validate:"gt=0"`
}

// AdminConfig holds the HS256 key for operator tokens. Empty disables /admin.
type AdminConfig struct {
	JWTKey string `mapstructure:"jwt_key"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("grpc_addr", ":9090")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("dev", false)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.store_timeout", 2*time.Second)
	v.SetDefault("database.max_conns", 0)
	v.SetDefault("token.ttl", time.Hour)
	v.SetDefault("token.max_active", 50)
	v.SetDefault("token.purge_interval", 10*time.Minute)
	v.SetDefault("token.purge_grace", time.Hour)
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("ratelimit.idle_ttl", 10*time.Minute)
	v.SetDefault("usage.buffer", 1024)
	v.SetDefault("usage.workers", 2)
	v.SetDefault("usage.batch_size", 100)
	v.SetDefault("usage.batch_timeout", time.Second)
	v.SetDefault("lockout.window", 15*time.Minute)
	v.SetDefault("lockout.max_failures", 5)
	v.SetDefault("lockout.block_for", 15*time.Minute)
	v.SetDefault("admin.jwt_key", "")
}

// Load reads path (if non-empty), then overlays GK_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
