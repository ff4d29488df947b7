package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() (*logrus.Logger, *bytes.Buffer) {
	log := logrus.New()
	buf := &bytes.Buffer{}
	log.SetOutput(buf)
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.DebugLevel)
	return log, buf
}

func parseLogOutput(buf *bytes.Buffer) map[string]interface{} {
	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		return nil
	}
	return logEntry
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		env      string
		expected logrus.Level
		jsonFmt  bool
	}{
		{name: "debug development", level: "debug", env: "development", expected: logrus.DebugLevel},
		{name: "invalid level falls back", level: "loud", env: "staging", expected: logrus.InfoLevel},
		{name: "production uses json", level: "warn", env: "production", expected: logrus.WarnLevel, jsonFmt: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := NewLogger(tt.level, tt.env)
			assert.Equal(t, tt.expected, log.GetLevel())
			_, isJSON := log.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.jsonFmt, isJSON)
		})
	}
}

func TestCalibrationLoggerRefresh(t *testing.T) {
	log, buf := setupTestLogger()
	cl := NewCalibrationLogger(log)

	cl.LogRefresh("run-1", 420, 3, 2, 1, true, 1500*time.Millisecond)

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "calibration", logEntry["component"])
	assert.Equal(t, "run-1", logEntry["run_id"])
	assert.Equal(t, float64(420), logEntry["records"])
	assert.Equal(t, float64(1500), logEntry["duration_ms"])
	assert.Equal(t, "info", logEntry["level"])
}

func TestCalibrationLoggerRefreshFailure(t *testing.T) {
	log, buf := setupTestLogger()
	cl := NewCalibrationLogger(log)

	cl.LogRefreshFailure("run-2", errors.New("connection refused"), 4, time.Time{})

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "error", logEntry["level"])
	assert.Equal(t, "connection refused", logEntry["error"])
	assert.Equal(t, float64(4), logEntry["attempts"])
}

func TestCalibrationLoggerDebugLines(t *testing.T) {
	log, buf := setupTestLogger()
	cl := NewCalibrationLogger(log)

	cl.LogCalibration("sourceX", 73, 51.1, 0.7, "70-74", true)
	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "debug", logEntry["level"])
	assert.Equal(t, "70-74", logEntry["bin"])
	assert.Equal(t, true, logEntry["was_adjusted"])

	buf.Reset()
	cl.LogConsensus("home", 80, 2, []string{"C"}, false, false)
	logEntry = parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "home", logEntry["pick"])
	assert.Equal(t, []interface{}{"C"}, logEntry["excluded"])
}

func TestCalibrationLoggerSuppressedAboveDebug(t *testing.T) {
	log, buf := setupTestLogger()
	log.SetLevel(logrus.InfoLevel)
	cl := NewCalibrationLogger(log)

	cl.LogCalibration("sourceX", 73, 51.1, 0.7, "70-74", true)

	assert.Zero(t, buf.Len())
}

func TestCalibrationLoggerStale(t *testing.T) {
	log, buf := setupTestLogger()
	cl := NewCalibrationLogger(log)

	cl.LogStale(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 30*time.Minute)

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "warning", logEntry["level"])
	assert.Equal(t, "30m0s", logEntry["stale_after"])
}

func TestAuditLoggerSourceTransitions(t *testing.T) {
	log, buf := setupTestLogger()
	al := NewAuditLogger(log)

	al.LogSourcePaused("alpha", "losing_streak: 8 consecutive losses", 12, 33.3, -30.1, -8)
	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "audit", logEntry["component"])
	assert.Equal(t, "paused", logEntry["event_type"])
	assert.Equal(t, float64(-8), logEntry["streak"])

	buf.Reset()
	al.LogSourceResumed("alpha", 62.5)
	logEntry = parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "resumed", logEntry["event_type"])
	assert.Equal(t, 62.5, logEntry["health_score"])
}

func TestAuditLoggerSettlement(t *testing.T) {
	log, buf := setupTestLogger()
	al := NewAuditLogger(log)

	al.LogPredictionSettled("pred-1", "alpha", "won")

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "pred-1", logEntry["prediction_id"])
	assert.Equal(t, "won", logEntry["outcome"])
}
