package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/payscope/payscope/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("MAPPING_CONFIDENCE_THRESHOLD", "")
	t.Setenv("MAX_RETRIES", "")
	t.Setenv("STAGE_TIMEOUT_SECONDS", "")
	t.Setenv("DLQ_ENABLED", "")

	cfg := config.Load()

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Contains(t, cfg.DatabaseDSN, "localhost")
	assert.Equal(t, 0.75, cfg.MappingConfidenceThreshold)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.StageTimeout)
	assert.True(t, cfg.DLQEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_DSN", "postgres://prod-host:5432/payscope")
	t.Setenv("MAPPING_CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("MAX_RETRIES", "3")
	t.Setenv("STAGE_TIMEOUT_SECONDS", "60")
	t.Setenv("DLQ_ENABLED", "false")

	cfg := config.Load()

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://prod-host:5432/payscope", cfg.DatabaseDSN)
	assert.Equal(t, 0.9, cfg.MappingConfidenceThreshold)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.StageTimeout)
	assert.False(t, cfg.DLQEnabled)
}

func TestLoad_InvalidNumericFallsBackToDefault(t *testing.T) {
	t.Setenv("MAX_RETRIES", "not-a-number")

	cfg := config.Load()

	assert.Equal(t, 5, cfg.MaxRetries)
}
