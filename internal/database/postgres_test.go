package database

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/clever-calibrator/internal/config"
)

func TestPoolConfig(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:           "db.internal",
		Port:           6543,
		Name:           "calibrator",
		User:           "svc",
		Password:       "secret",
		SSLMode:        "require",
		MaxConnections: 12,
	}

	poolConfig, err := PoolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", poolConfig.ConnConfig.Host)
	assert.Equal(t, uint16(6543), poolConfig.ConnConfig.Port)
	assert.Equal(t, "calibrator", poolConfig.ConnConfig.Database)
	assert.Equal(t, "svc", poolConfig.ConnConfig.User)
	assert.Equal(t, int32(12), poolConfig.MaxConns)
	assert.Equal(t, int32(1), poolConfig.MinConns)
	assert.Equal(t, 30*time.Second, poolConfig.HealthCheckPeriod)
}

func TestPoolConfigKeepsIdleConnectionsWarm(t *testing.T) {
	poolConfig, err := PoolConfig(&config.DatabaseConfig{
		Host:               "localhost",
		Port:               5432,
		Name:               "calibrator",
		User:               "svc",
		SSLMode:            "disable",
		MaxConnections:     10,
		MaxIdleConnections: 4,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(4), poolConfig.MinConns)
}

func TestPoolConfigRejectsInvalidSSLMode(t *testing.T) {
	_, err := PoolConfig(&config.DatabaseConfig{
		Host:    "localhost",
		Port:    5432,
		Name:    "calibrator",
		User:    "svc",
		SSLMode: "sometimes",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse database config")
}

func TestSchemaStatementsAreIdempotent(t *testing.T) {
	for _, stmt := range schemaStatements {
		assert.True(t, strings.Contains(stmt, "IF NOT EXISTS"), stmt)
	}
}
