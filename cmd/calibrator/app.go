package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/clever-calibrator/internal/calibration"
	"github.com/yourusername/clever-calibrator/internal/config"
	"github.com/yourusername/clever-calibrator/internal/database"
	"github.com/yourusername/clever-calibrator/internal/datasource"
	"github.com/yourusername/clever-calibrator/internal/repository"
	"github.com/yourusername/clever-calibrator/internal/service"
)

// application holds the wired dependencies shared by every command
type application struct {
	cfg     *config.Config
	logger  *logrus.Logger
	db      *database.DB
	repos   *repository.Repositories
	service *service.CalibrationService
}

func newApplication(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*application, error) {
	app := &application{cfg: cfg, logger: log}

	if cfg.UsesDatabase() {
		db, err := database.Initialize(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		app.db = db
		log.WithFields(logrus.Fields{
			"host":     cfg.Database.Host,
			"database": cfg.Database.Name,
		}).Info("Database connection established")

		repos, err := repository.NewRepositories(db)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to initialize repositories: %w", err)
		}
		app.repos = repos
	}

	source, err := datasource.NewPredictionSource(cfg.HistorySource, app.repos, log)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to create history source: %w", err)
	}
	if cfg.HistorySource.CacheTTLSeconds > 0 {
		source = service.NewCachedPredictionSource(source, time.Duration(cfg.HistorySource.CacheTTLSeconds)*time.Second)
	}

	deps := service.Dependencies{
		Engine: calibration.NewEngine(cfg.EngineConfig()),
		Source: source,
		Logger: log,
	}
	if app.repos != nil {
		deps.Predictions = app.repos.Prediction
		if cfg.Calibration.PersistSnapshots {
			deps.Snapshots = app.repos.Snapshot
		}
	}

	svc, err := service.NewCalibrationService(serviceConfig(cfg), deps)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.service = svc

	log.WithFields(logrus.Fields{
		"history_source":    cfg.HistorySource.Type,
		"persist_snapshots": deps.Snapshots != nil,
	}).Debug("Calibration service wired")

	return app, nil
}

func serviceConfig(cfg *config.Config) service.Config {
	svcCfg := service.DefaultConfig()
	svcCfg.HistoryWindowDays = cfg.Calibration.HistoryWindowDays
	svcCfg.PerformanceWindowDays = cfg.Calibration.PerformanceWindowDays
	if cfg.Calibration.RefreshMaxElapsedSeconds > 0 {
		svcCfg.RetryMaxElapsed = time.Duration(cfg.Calibration.RefreshMaxElapsedSeconds) * time.Second
	}
	svcCfg.Staking = cfg.StakingConfig()
	svcCfg.Uncertainty = cfg.UncertaintyConfig()
	svcCfg.DefaultBankroll = decimal.NewFromFloat(cfg.Staking.DefaultBankroll)
	return svcCfg
}

// Close releases the database pool when one was opened
func (a *application) Close() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}
