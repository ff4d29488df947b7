package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/clever-calibrator/internal/api"
	"github.com/yourusername/clever-calibrator/internal/metrics"
	"github.com/yourusername/clever-calibrator/internal/scheduler"
	"github.com/yourusername/clever-calibrator/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the calibration API with scheduled refreshes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"version":     Version,
	}).Info("Calibration service starting")

	app, err := newApplication(ctx, cfg, appLog)
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	if err := tracing.Initialize(tracing.Config{
		ServiceName:    cfg.App.Name,
		ServiceVersion: Version,
		Enabled:        cfg.Tracing.Enabled,
		SamplingRate:   cfg.Tracing.SamplingRate,
		DaemonAddr:     cfg.Tracing.DaemonAddr,
	}, appLog); err != nil {
		return err
	}

	if restored, err := app.service.WarmStart(ctx); err != nil {
		appLog.WithError(err).Warn("Warm start failed, starting from neutral calibration")
	} else if restored {
		appLog.Info("Calibration restored from last persisted snapshot")
	}

	// A failed first refresh is not fatal: calibrate degrades to identity until one succeeds
	if _, err := app.service.Refresh(ctx); err != nil {
		appLog.WithError(err).Warn("Initial calibration refresh failed")
	}

	sched := scheduler.NewScheduler(app.service, appLog)
	if err := sched.ScheduleRefresh(cfg.Calibration.RefreshSchedule); err != nil {
		return err
	}
	if cfg.Calibration.PersistSnapshots && cfg.Calibration.SnapshotRetentionDays > 0 {
		retention := time.Duration(cfg.Calibration.SnapshotRetentionDays) * 24 * time.Hour
		if err := sched.ScheduleSnapshotPrune(cfg.Calibration.PruneSchedule, retention); err != nil {
			return err
		}
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			appLog.WithError(err).Error("Error stopping scheduler")
		}
	}()

	apiCfg := api.Config{
		ServiceName:    cfg.App.Name,
		Version:        Version,
		Commit:         GitCommit,
		Address:        cfg.ServerAddress(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		Logger:         appLog,
		Calibrator:     app.service,
	}
	if app.db != nil {
		apiCfg.DB = app.db
	}
	server := api.NewServer(apiCfg)
	if err := server.Start(ctx); err != nil {
		return err
	}
	server.SetReady(true)

	appLog.WithField("next_refresh", sched.GetNextRun()).Info("Calibration service running")

	<-ctx.Done()
	appLog.Info("Shutdown signal received")
	server.SetReady(false)

	return server.Shutdown()
}
