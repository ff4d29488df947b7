package logger

import (
	"github.com/sirupsen/logrus"
)

// AuditLogger provides dedicated audit trail logging.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogSourcePaused logs a source being suspended from consensus voting.
func (al *AuditLogger) LogSourcePaused(sourceID, reason string, totalBets int, winRate, performanceVsExpected float64, streak int) {
	al.WithFields(logrus.Fields{
		"source_id":               sourceID,
		"event_type":              "paused",
		"reason":                  reason,
		"total_bets":              totalBets,
		"win_rate":                winRate,
		"performance_vs_expected": performanceVsExpected,
		"streak":                  streak,
	}).Warn("Source paused")
}

// LogSourceResumed logs a previously paused source returning to consensus.
func (al *AuditLogger) LogSourceResumed(sourceID string, healthScore float64) {
	al.WithFields(logrus.Fields{
		"source_id":    sourceID,
		"event_type":   "resumed",
		"health_score": healthScore,
	}).Info("Source resumed")
}

// LogPredictionSettled logs an outcome being recorded for a prediction.
func (al *AuditLogger) LogPredictionSettled(predictionID, sourceID, outcome string) {
	al.WithFields(logrus.Fields{
		"prediction_id": predictionID,
		"source_id":     sourceID,
		"outcome":       outcome,
	}).Info("Prediction settled")
}
