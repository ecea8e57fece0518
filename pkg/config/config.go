package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Ledger operating modes
const (
	LedgerModeDisabled = "disabled"
	LedgerModeRemote   = "remote"
	LedgerModeEmbedded = "embedded"
)

// Config holds all configuration for the consent-trail service
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Ledger configuration
	Ledger LedgerConfig `mapstructure:"ledger"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds internal datastore configuration. Driver
// "memory" selects the in-process store for development and tests.
// Bootstrap controls whether the schema is created on connect; turn
// it off when migrations are managed externally.
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	ConnectTimeout  int    `mapstructure:"connect_timeout"`
	Bootstrap       bool   `mapstructure:"bootstrap"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// LedgerConfig holds external ledger configuration. Mode "disabled"
// turns every ledger call into a cheap no-op returning skipped; the
// rest of the system's semantics are unaffected.
type LedgerConfig struct {
	Mode            string `mapstructure:"mode"`
	Endpoint        string `mapstructure:"endpoint"`
	APIKey          string `mapstructure:"api_key"`
	SubmitTimeout   int    `mapstructure:"submit_timeout"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	EmbeddedPath    string `mapstructure:"embedded_path"`
	BreakerMaxFails uint32 `mapstructure:"breaker_max_fails"`
	BreakerCooldown int    `mapstructure:"breaker_cooldown"`
	RetryAttempts   int    `mapstructure:"retry_attempts"`
	RetryBackoff    int    `mapstructure:"retry_backoff"`
}

// Enabled reports whether ledger mirroring is turned on at all
func (c *LedgerConfig) Enabled() bool {
	return c.Mode != "" && c.Mode != LedgerModeDisabled
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/consent-trail")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)

	// Database defaults
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "consent_trail")
	viper.SetDefault("database.user", "consent_trail")
	viper.SetDefault("database.ssl_mode", "require")
	viper.SetDefault("database.connect_timeout", 10)
	viper.SetDefault("database.bootstrap", true)
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	// Ledger defaults. Submission latency is externally bounded, so
	// the submit timeout is deliberately generous.
	viper.SetDefault("ledger.mode", LedgerModeDisabled)
	viper.SetDefault("ledger.submit_timeout", 15)
	viper.SetDefault("ledger.read_timeout", 5)
	viper.SetDefault("ledger.embedded_path", "./data/ledger")
	viper.SetDefault("ledger.breaker_max_fails", 5)
	viper.SetDefault("ledger.breaker_cooldown", 30)
	viper.SetDefault("ledger.retry_attempts", 3)
	viper.SetDefault("ledger.retry_backoff", 2)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")
	viper.SetDefault("monitoring.health_path", "/health")

	// Logging defaults
	viper.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if mode := os.Getenv("LEDGER_MODE"); mode != "" {
		config.Ledger.Mode = mode
	}

	if endpoint := os.Getenv("LEDGER_ENDPOINT"); endpoint != "" {
		config.Ledger.Endpoint = endpoint
	}

	if key := os.Getenv("LEDGER_API_KEY"); key != "" {
		config.Ledger.APIKey = key
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	switch config.Ledger.Mode {
	case LedgerModeDisabled, LedgerModeEmbedded:
	case LedgerModeRemote:
		if config.Ledger.Endpoint == "" {
			return fmt.Errorf("ledger endpoint is required in remote mode")
		}
	default:
		return fmt.Errorf("unknown ledger mode: %s", config.Ledger.Mode)
	}

	switch config.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown database driver: %s", config.Database.Driver)
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	return nil
}
