package datasource

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/clever-calibrator/internal/config"
	"github.com/yourusername/clever-calibrator/internal/repository"
)

// NewPredictionSource builds the history source named by the configuration.
// The postgres type reads from repos; the rest type needs no database.
func NewPredictionSource(cfg config.HistorySourceConfig, repos *repository.Repositories, logger *logrus.Logger) (repository.PredictionSource, error) {
	switch cfg.Type {
	case config.SourceTypePostgres:
		if repos == nil || repos.Prediction == nil {
			return nil, fmt.Errorf("postgres history source requires a database")
		}
		return repos.Prediction, nil

	case config.SourceTypeREST:
		if cfg.URL == "" {
			return nil, fmt.Errorf("rest history source requires a url")
		}
		client := NewRateLimitedHTTPClient(HTTPClientConfigFrom(cfg), logger)
		source := NewRESTPredictionSource(client, cfg.URL, cfg.Table, cfg.APIKey, logger)
		source.SetPageSize(cfg.PageSize)
		return source, nil

	default:
		return nil, fmt.Errorf("unknown history source type: %s", cfg.Type)
	}
}

// HTTPClientConfigFrom maps history source settings onto the HTTP client defaults
func HTTPClientConfigFrom(cfg config.HistorySourceConfig) HTTPClientConfig {
	httpCfg := DefaultHTTPClientConfig()
	if cfg.TimeoutSeconds > 0 {
		httpCfg.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.RequestsPerSecond > 0 {
		httpCfg.RateLimit = cfg.RequestsPerSecond
	}
	if cfg.Burst > 0 {
		httpCfg.Burst = cfg.Burst
	}
	httpCfg.MaxRetries = cfg.RetryAttempts
	return httpCfg
}
