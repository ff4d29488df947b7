package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix         = "CALIBRATOR"
	defaultConfigPath = "config/config.yaml"
)

// Load reads and parses the configuration from file and environment variables.
// It expands environment variable placeholders in the YAML file (${VAR_NAME}).
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := newViper()
	if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for optional fields.
// A missing file is not an error: defaults and environment variables are used instead.
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	v := newViper()
	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// ReloadFromEnv reloads the configuration from CALIBRATOR_CONFIG_PATH when set
func ReloadFromEnv(cfg *Config) error {
	if envPath := os.Getenv(envPrefix + "_CONFIG_PATH"); envPath != "" {
		newCfg, err := Load(envPath)
		if err != nil {
			return err
		}
		*cfg = *newCfg
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "clever-calibrator")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "calibrator")
	v.SetDefault("database.user", "calibrator")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle_connections", 5)

	v.SetDefault("history_source.type", SourceTypePostgres)
	v.SetDefault("history_source.table", "predictions")
	v.SetDefault("history_source.page_size", 1000)
	v.SetDefault("history_source.requests_per_second", 5)
	v.SetDefault("history_source.burst", 5)
	v.SetDefault("history_source.timeout_seconds", 15)
	v.SetDefault("history_source.retry_attempts", 3)
	v.SetDefault("history_source.cache_ttl_seconds", 300)

	v.SetDefault("calibration.min_sample_threshold", 5)
	v.SetDefault("calibration.min_bets_for_calibration", 10)
	v.SetDefault("calibration.underperformance_threshold", 10)
	v.SetDefault("calibration.overperformance_threshold", 10)
	v.SetDefault("calibration.default_weight", 0.33)
	v.SetDefault("calibration.underperforming_weight_mult", 0.5)
	v.SetDefault("calibration.overperforming_weight_mult", 1.5)
	v.SetDefault("calibration.performance_window_days", 30)
	v.SetDefault("calibration.history_window_days", 90)
	v.SetDefault("calibration.stale_after_minutes", 30)
	v.SetDefault("calibration.refresh_schedule", "@every 60m")
	v.SetDefault("calibration.snapshot_retention_days", 30)
	v.SetDefault("calibration.prune_schedule", "0 3 * * *")
	v.SetDefault("calibration.refresh_max_elapsed_seconds", 120)

	v.SetDefault("staking.kelly_fraction", 0.25)
	v.SetDefault("staking.max_stake", 100)
	v.SetDefault("staking.min_stake", 2)
	v.SetDefault("staking.default_bankroll", 1000)

	v.SetDefault("uncertainty.iterations", 1000)
	v.SetDefault("uncertainty.confidence_level", 0.95)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 10)
	v.SetDefault("server.write_timeout_seconds", 10)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.daemon_addr", "127.0.0.1:2000")
	v.SetDefault("tracing.sampling_rate", 0.05)
}
