package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// CalibrationLogger provides dedicated logging for calibration refreshes and lookups.
type CalibrationLogger struct {
	*logrus.Entry
}

// NewCalibrationLogger creates a new calibration logger.
func NewCalibrationLogger(baseLogger *logrus.Logger) *CalibrationLogger {
	return &CalibrationLogger{
		Entry: baseLogger.WithField("component", "calibration"),
	}
}

// LogRefresh logs a completed calibration refresh.
func (cl *CalibrationLogger) LogRefresh(runID string, records, sources, adjustedBins, pausedSources int, isCalibrated bool, duration time.Duration) {
	cl.WithFields(logrus.Fields{
		"run_id":         runID,
		"records":        records,
		"sources":        sources,
		"adjusted_bins":  adjustedBins,
		"paused_sources": pausedSources,
		"is_calibrated":  isCalibrated,
		"duration_ms":    duration.Milliseconds(),
	}).Info("Calibration refreshed")
}

// LogRefreshFailure logs a refresh that gave up; the previous snapshot stays in place.
func (cl *CalibrationLogger) LogRefreshFailure(runID string, err error, attempts int, lastUpdated time.Time) {
	cl.WithError(err).WithFields(logrus.Fields{
		"run_id":       runID,
		"attempts":     attempts,
		"last_updated": lastUpdated,
	}).Error("Calibration refresh failed, keeping previous snapshot")
}

// LogCalibration logs a single calibrate call.
func (cl *CalibrationLogger) LogCalibration(sourceID string, raw, adjusted, multiplier float64, binLabel string, wasAdjusted bool) {
	cl.WithFields(logrus.Fields{
		"source_id":    sourceID,
		"raw":          raw,
		"adjusted":     adjusted,
		"multiplier":   multiplier,
		"bin":          binLabel,
		"was_adjusted": wasAdjusted,
	}).Debug("Confidence calibrated")
}

// LogConsensus logs a consensus decision.
func (cl *CalibrationLogger) LogConsensus(pick string, confidence float64, activeSources int, excluded []string, highConsensus, tie bool) {
	cl.WithFields(logrus.Fields{
		"pick":           pick,
		"confidence":     confidence,
		"active_sources": activeSources,
		"excluded":       excluded,
		"high_consensus": highConsensus,
		"tie":            tie,
	}).Debug("Consensus computed")
}

// LogStale logs that a caller asked for calibration while the snapshot was stale.
func (cl *CalibrationLogger) LogStale(lastUpdated time.Time, staleAfter time.Duration) {
	cl.WithFields(logrus.Fields{
		"last_updated": lastUpdated,
		"stale_after":  staleAfter.String(),
	}).Warn("Calibration snapshot is stale")
}
