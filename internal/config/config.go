// Package config loads and validates the listing engine configuration.
// Values come from an optional YAML file, environment variables, and
// defaults, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerAddress   = ":8085"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 5 * time.Minute
	defaultDBHost          = "localhost"
	defaultDBPort          = 5432
	defaultDBUser          = "postgres"
	defaultDBName          = "listing_engine"
	defaultDBSSLMode       = "disable"
	defaultDBMaxConns      = 25
	defaultDBMaxIdleConns  = 5
	defaultDBConnLifetime  = 5 * time.Minute
	defaultRedisAddr       = "localhost:6379"
	defaultPageSize        = 50
	defaultPerModelCap     = 200
	defaultRequestTimeout  = 15 * time.Second
	defaultRequestsPerSec  = 4.0
	defaultRunTimeout      = 60 * time.Second
	defaultThrottleTTL     = 30 * time.Second
	defaultCleanupSchedule = "45 3 * * *"
)

// Config holds the full engine configuration.
type Config struct {
	Debug        bool               `mapstructure:"debug"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Marketplace  MarketplaceConfig  `mapstructure:"marketplace"`
	Revalidation RevalidationConfig `mapstructure:"revalidation"`
	Cleanup      CleanupConfig      `mapstructure:"cleanup"`
}

// ServerConfig holds the operator HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"connection_max_lifetime"`
}

// RedisConfig holds the trigger result-cache configuration. The cache
// is optional; with Enabled false every trigger starts a fresh run.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MarketplaceConfig holds the outbound search client configuration.
type MarketplaceConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	AuthToken         string        `mapstructure:"auth_token"`
	AffiliateCampaign string        `mapstructure:"affiliate_campaign"`
	PageSize          int           `mapstructure:"page_size"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSec    float64       `mapstructure:"requests_per_sec"`
}

// RevalidationConfig holds revalidation run parameters.
type RevalidationConfig struct {
	// DefaultTimeout bounds a run when the trigger does not supply one.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	// PerModelCap limits raw candidates collected per model.
	PerModelCap int `mapstructure:"per_model_cap"`
	// ThrottleTTL is how long a run result answers repeat triggers.
	ThrottleTTL time.Duration `mapstructure:"throttle_ttl"`
	// Schedule is an optional cron spec for periodic runs in serve mode.
	Schedule string `mapstructure:"schedule"`
}

// CleanupConfig holds cleanup sweep parameters.
type CleanupConfig struct {
	Schedule string `mapstructure:"schedule"`
	Enabled  bool   `mapstructure:"enabled"`
}

// Load reads configuration from the given file path (optional) plus
// environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// The config file is optional; only a malformed file is fatal.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && path != "" {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("server.address", defaultServerAddress)
	v.SetDefault("server.read_timeout", defaultReadTimeout)
	v.SetDefault("server.write_timeout", defaultWriteTimeout)
	v.SetDefault("database.host", defaultDBHost)
	v.SetDefault("database.port", defaultDBPort)
	v.SetDefault("database.user", defaultDBUser)
	v.SetDefault("database.database", defaultDBName)
	v.SetDefault("database.sslmode", defaultDBSSLMode)
	v.SetDefault("database.max_connections", defaultDBMaxConns)
	v.SetDefault("database.max_idle_connections", defaultDBMaxIdleConns)
	v.SetDefault("database.connection_max_lifetime", defaultDBConnLifetime)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", defaultRedisAddr)
	v.SetDefault("marketplace.page_size", defaultPageSize)
	v.SetDefault("marketplace.request_timeout", defaultRequestTimeout)
	v.SetDefault("marketplace.requests_per_sec", defaultRequestsPerSec)
	v.SetDefault("revalidation.default_timeout", defaultRunTimeout)
	v.SetDefault("revalidation.per_model_cap", defaultPerModelCap)
	v.SetDefault("revalidation.throttle_ttl", defaultThrottleTTL)
	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.schedule", defaultCleanupSchedule)
}

// Validate checks the configuration for values the engine cannot run
// with.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Database == "" {
		return errors.New("database.database is required")
	}
	if c.Marketplace.BaseURL == "" {
		return errors.New("marketplace.base_url is required")
	}
	if c.Marketplace.PageSize <= 0 {
		return fmt.Errorf("marketplace.page_size must be positive, got %d", c.Marketplace.PageSize)
	}
	if c.Revalidation.PerModelCap <= 0 {
		return fmt.Errorf("revalidation.per_model_cap must be positive, got %d", c.Revalidation.PerModelCap)
	}
	if c.Revalidation.DefaultTimeout <= 0 {
		return fmt.Errorf("revalidation.default_timeout must be positive, got %v", c.Revalidation.DefaultTimeout)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis.enabled is true")
	}
	return nil
}
