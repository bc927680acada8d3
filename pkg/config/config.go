// Package config loads and validates the treasury engine configuration.
package config

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Governance GovernanceConfig `mapstructure:"governance"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host" default:"0.0.0.0"`
	Port            int           `mapstructure:"port" default:"8080"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" default:"30s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" default:"30s"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" default:"30s"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host" default:"localhost"`
	Port     int    `mapstructure:"port" default:"5432"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" default:"treasury"`
	SSLMode  string `mapstructure:"ssl_mode" default:"disable"`
}

// QueueConfig contains AMQP settings for the ingestion consumer and the
// outbound notification publisher.
type QueueConfig struct {
	URL            string `mapstructure:"url"`
	IngestQueue    string `mapstructure:"ingest_queue" default:"treasury.events"`
	NotifyExchange string `mapstructure:"notify_exchange" default:"governance.notifications"`
	PrefetchCount  int    `mapstructure:"prefetch_count" default:"16"`
	MaxRetries     uint   `mapstructure:"max_retries" default:"3"`
}

// GovernanceConfig contains proposal engine settings
type GovernanceConfig struct {
	SweepInterval          time.Duration `mapstructure:"sweep_interval" default:"1m"`
	MinVotingDurationHours int           `mapstructure:"min_voting_duration_hours" default:"1"`
	MaxVotingDurationHours int           `mapstructure:"max_voting_duration_hours" default:"720"`
}

// AuthConfig contains bearer token verification settings.
// Token issuance is handled by the platform; the engine only verifies.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool `mapstructure:"enabled" default:"true"`
	MetricsPort int  `mapstructure:"metrics_port" default:"9090"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" default:"info"`
	Format     string `mapstructure:"format" default:"json"`
	OutputPath string `mapstructure:"output_path" default:"stdout"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Seed the struct from tag defaults first, then let the file overwrite.
	// The other order resets explicit zero values (enabled: false) back to
	// their defaults.
	var config Config
	if err := defaults.Set(&config); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	// queue.url is optional: without it the server runs query-only, with
	// ingestion and notifications disabled.
	if config.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if config.Governance.MinVotingDurationHours < 1 {
		return fmt.Errorf("governance.min_voting_duration_hours must be at least 1")
	}
	if config.Governance.MaxVotingDurationHours < config.Governance.MinVotingDurationHours {
		return fmt.Errorf("governance.max_voting_duration_hours must not be below the minimum")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
