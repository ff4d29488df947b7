// Package config provides configuration management for the calibration service.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/yourusername/clever-calibrator/internal/calibration"
	"github.com/yourusername/clever-calibrator/internal/staking"
	"github.com/yourusername/clever-calibrator/internal/uncertainty"
)

// History source types
const (
	SourceTypePostgres = "postgres"
	SourceTypeREST     = "rest"
)

// Config represents the complete application configuration
type Config struct {
	App           AppConfig           `mapstructure:"app" validate:"required"`
	Database      DatabaseConfig      `mapstructure:"database"`
	HistorySource HistorySourceConfig `mapstructure:"history_source" validate:"required"`
	Calibration   CalibrationConfig   `mapstructure:"calibration" validate:"required"`
	Staking       StakingConfig       `mapstructure:"staking" validate:"required"`
	Uncertainty   UncertaintyConfig   `mapstructure:"uncertainty"`
	Server        ServerConfig        `mapstructure:"server" validate:"required"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
	Secrets       SecretsConfig       `mapstructure:"secrets"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration.
// Only required when predictions are read from Postgres or snapshots are persisted.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"omitempty,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"omitempty,gt=0"`
}

// HistorySourceConfig selects where settled predictions are read from
type HistorySourceConfig struct {
	Type              string  `mapstructure:"type" validate:"required,sourcetype"`
	URL               string  `mapstructure:"url" validate:"omitempty,url"`
	APIKey            string  `mapstructure:"api_key"`
	Table             string  `mapstructure:"table"`
	PageSize          int     `mapstructure:"page_size" validate:"gte=0"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"omitempty,gt=0"`
	Burst             int     `mapstructure:"burst" validate:"omitempty,gt=0"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" validate:"omitempty,gt=0"`
	RetryAttempts     int     `mapstructure:"retry_attempts" validate:"gte=0"`
	CacheTTLSeconds   int     `mapstructure:"cache_ttl_seconds" validate:"gte=0"`
}

// CalibrationConfig represents calibration engine tuning
type CalibrationConfig struct {
	MinSampleThreshold        int     `mapstructure:"min_sample_threshold" validate:"required,gt=0"`
	MinBetsForCalibration     int     `mapstructure:"min_bets_for_calibration" validate:"required,gt=0"`
	UnderperformanceThreshold float64 `mapstructure:"underperformance_threshold" validate:"required,gt=0"`
	OverperformanceThreshold  float64 `mapstructure:"overperformance_threshold" validate:"required,gt=0"`
	DefaultWeight             float64 `mapstructure:"default_weight" validate:"required,gt=0,lte=1"`
	UnderperformingWeightMult float64 `mapstructure:"underperforming_weight_mult" validate:"required,gt=0"`
	OverperformingWeightMult  float64 `mapstructure:"overperforming_weight_mult" validate:"required,gt=0"`
	PerformanceWindowDays     int     `mapstructure:"performance_window_days" validate:"required,gt=0"`
	HistoryWindowDays         int     `mapstructure:"history_window_days" validate:"required,gt=0"`
	StaleAfterMinutes         int     `mapstructure:"stale_after_minutes" validate:"required,gt=0"`
	RefreshSchedule           string  `mapstructure:"refresh_schedule" validate:"required"`
	RefreshMaxElapsedSeconds  int     `mapstructure:"refresh_max_elapsed_seconds" validate:"gte=0"`
	PersistSnapshots          bool    `mapstructure:"persist_snapshots"`
	SnapshotRetentionDays     int     `mapstructure:"snapshot_retention_days" validate:"gte=0"`
	PruneSchedule             string  `mapstructure:"prune_schedule"`
}

// StakingConfig represents stake sizing configuration
type StakingConfig struct {
	KellyFraction   float64 `mapstructure:"kelly_fraction" validate:"required,gt=0,lte=1"`
	MaxStake        float64 `mapstructure:"max_stake" validate:"required,gt=0"`
	MinStake        float64 `mapstructure:"min_stake" validate:"gte=0"`
	DefaultBankroll float64 `mapstructure:"default_bankroll" validate:"required,gt=0"`
}

// UncertaintyConfig represents Monte-Carlo estimator configuration
type UncertaintyConfig struct {
	Iterations      int     `mapstructure:"iterations" validate:"omitempty,gt=0,lte=100000"`
	ConfidenceLevel float64 `mapstructure:"confidence_level" validate:"omitempty,gt=0,lt=1"`
	Seed            int64   `mapstructure:"seed"`
}

// ServerConfig represents HTTP API configuration
type ServerConfig struct {
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds" validate:"omitempty,gt=0"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds" validate:"omitempty,gt=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

// TracingConfig represents AWS X-Ray tracing configuration
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	DaemonAddr   string  `mapstructure:"daemon_addr" validate:"omitempty,hostname_port"`
	SamplingRate float64 `mapstructure:"sampling_rate" validate:"gte=0,lte=1"`
}

// SecretsConfig represents the optional AWS Secrets Manager overlay
type SecretsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Region     string `mapstructure:"region" validate:"required_if=Enabled true"`
	SecretName string `mapstructure:"secret_name" validate:"required_if=Enabled true"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// UsesDatabase reports whether any component needs a Postgres connection
func (c *Config) UsesDatabase() bool {
	return c.HistorySource.Type == SourceTypePostgres || c.Calibration.PersistSnapshots
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// ServerAddress returns the host:port the API listens on
func (c *Config) ServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// EngineConfig converts calibration settings into engine configuration
func (c *Config) EngineConfig() calibration.EngineConfig {
	return calibration.EngineConfig{
		Bins: calibration.BinConfig{
			MinSampleThreshold: c.Calibration.MinSampleThreshold,
		},
		Performance: calibration.PerformanceConfig{
			MinBetsForCalibration:     c.Calibration.MinBetsForCalibration,
			UnderperformanceThreshold: c.Calibration.UnderperformanceThreshold,
			OverperformanceThreshold:  c.Calibration.OverperformanceThreshold,
			DefaultWeight:             c.Calibration.DefaultWeight,
			UnderperformingWeightMult: c.Calibration.UnderperformingWeightMult,
			OverperformingWeightMult:  c.Calibration.OverperformingWeightMult,
		},
		StaleAfter: time.Duration(c.Calibration.StaleAfterMinutes) * time.Minute,
	}
}

// StakingConfig converts staking settings into the stake sizer configuration
func (c *Config) StakingConfig() staking.Config {
	return staking.Config{
		KellyFraction: c.Staking.KellyFraction,
		MaxStake:      c.Staking.MaxStake,
		MinStake:      c.Staking.MinStake,
	}
}

// UncertaintyConfig converts estimator settings, falling back to defaults
func (c *Config) UncertaintyConfig() uncertainty.Config {
	cfg := uncertainty.DefaultConfig()
	if c.Uncertainty.Iterations > 0 {
		cfg.Iterations = c.Uncertainty.Iterations
	}
	if c.Uncertainty.ConfidenceLevel > 0 {
		cfg.ConfidenceLevel = c.Uncertainty.ConfidenceLevel
	}
	cfg.Seed = c.Uncertainty.Seed
	return cfg
}
