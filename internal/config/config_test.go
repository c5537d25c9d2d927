package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"BOND_PORT", "LOG_LEVEL", "DEV_MODE", "INPUT_DEBOUNCE_MS", "PAR_TOLERANCE",
	"SESSION_IDLE_TIMEOUT", "SESSION_EVICTION_SCHEDULE", "VALUATION_RATE_LIMIT",
	"DEFAULT_FACE_VALUE", "DEFAULT_COUPON_RATE", "DEFAULT_YTM", "DEFAULT_YEARS", "DEFAULT_FREQUENCY",
}

// clearEnv blanks every key so a developer's .env or shell does not leak in.
// Empty values are treated as unset by the getEnv helpers.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, 300*time.Millisecond, cfg.InputDebounce)
	assert.Equal(t, 0.01, cfg.ParTolerance)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, "@every 1m", cfg.SessionEvictionSchedule)
	assert.Equal(t, 20.0, cfg.ValuationRateLimit)

	assert.Equal(t, 1000.0, cfg.Defaults.FaceValue)
	assert.Equal(t, 5.0, cfg.Defaults.CouponRate)
	assert.Equal(t, 5.0, cfg.Defaults.YTM)
	assert.Equal(t, 10.0, cfg.Defaults.Years)
	assert.Equal(t, 2, cfg.Defaults.Frequency)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOND_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("INPUT_DEBOUNCE_MS", "0")
	t.Setenv("PAR_TOLERANCE", "0.5")
	t.Setenv("SESSION_IDLE_TIMEOUT", "2h")
	t.Setenv("SESSION_EVICTION_SCHEDULE", "*/5 * * * *")
	t.Setenv("DEFAULT_FREQUENCY", "12")
	t.Setenv("DEFAULT_YEARS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, time.Duration(0), cfg.InputDebounce)
	assert.Equal(t, 0.5, cfg.ParTolerance)
	assert.Equal(t, 2*time.Hour, cfg.SessionIdleTimeout)
	assert.Equal(t, "*/5 * * * *", cfg.SessionEvictionSchedule)
	assert.Equal(t, 12, cfg.Defaults.Frequency)
	assert.Equal(t, 3.0, cfg.Defaults.Years)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOND_PORT", "eighty")
	t.Setenv("SESSION_IDLE_TIMEOUT", "forever")
	t.Setenv("PAR_TOLERANCE", "tight")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, 0.01, cfg.ParTolerance)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "BOND_PORT", "70000"},
		{"negative tolerance", "PAR_TOLERANCE", "-1"},
		{"bad schedule", "SESSION_EVICTION_SCHEDULE", "whenever"},
		{"unsupported frequency", "DEFAULT_FREQUENCY", "3"},
		{"zero face value", "DEFAULT_FACE_VALUE", "0"},
		{"term too long", "DEFAULT_YEARS", "1e9"},
		{"zero rate limit", "VALUATION_RATE_LIMIT", "0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)

			cfg, err := Load()
			assert.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}
