// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/bondcalc/internal/modules/valuation"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	Port     int
	LogLevel string
	DevMode  bool

	InputDebounce time.Duration
	ParTolerance  float64

	SessionIdleTimeout      time.Duration
	SessionEvictionSchedule string

	ValuationRateLimit float64 // requests per second on POST /api/valuations

	Defaults valuation.BondParameters
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnvAsInt("BOND_PORT", 8080),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		DevMode:                 getEnvAsBool("DEV_MODE", false),
		InputDebounce:           time.Duration(getEnvAsInt("INPUT_DEBOUNCE_MS", 300)) * time.Millisecond,
		ParTolerance:            getEnvAsFloat("PAR_TOLERANCE", valuation.DefaultParTolerance),
		SessionIdleTimeout:      getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionEvictionSchedule: getEnv("SESSION_EVICTION_SCHEDULE", "@every 1m"),
		ValuationRateLimit:      getEnvAsFloat("VALUATION_RATE_LIMIT", 20),
		Defaults: valuation.BondParameters{
			FaceValue:  getEnvAsFloat("DEFAULT_FACE_VALUE", 1000),
			CouponRate: getEnvAsFloat("DEFAULT_COUPON_RATE", 5),
			YTM:        getEnvAsFloat("DEFAULT_YTM", 5),
			Years:      getEnvAsFloat("DEFAULT_YEARS", 10),
			Frequency:  getEnvAsInt("DEFAULT_FREQUENCY", 2),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the loaded values are usable
func (c *Config) Validate() error {
	var problems []string

	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("BOND_PORT out of range: %d", c.Port))
	}
	if c.InputDebounce < 0 {
		problems = append(problems, "INPUT_DEBOUNCE_MS must not be negative")
	}
	if c.ParTolerance <= 0 {
		problems = append(problems, "PAR_TOLERANCE must be positive")
	}
	if c.SessionIdleTimeout <= 0 {
		problems = append(problems, "SESSION_IDLE_TIMEOUT must be positive")
	}
	if _, err := cron.ParseStandard(c.SessionEvictionSchedule); err != nil {
		problems = append(problems, fmt.Sprintf("SESSION_EVICTION_SCHEDULE invalid: %v", err))
	}
	if c.ValuationRateLimit <= 0 {
		problems = append(problems, "VALUATION_RATE_LIMIT must be positive")
	}

	d := c.Defaults
	if d.FaceValue <= 0 || d.CouponRate < 0 || d.Years <= 0 {
		problems = append(problems, "default bond parameters must have positive face value and years and a non-negative coupon")
	}
	if d.Years > valuation.MaxYears {
		problems = append(problems, fmt.Sprintf("DEFAULT_YEARS must be %d or less, got %g", valuation.MaxYears, d.Years))
	}
	switch d.Frequency {
	case 1, 2, 4, 12:
	default:
		problems = append(problems, fmt.Sprintf("DEFAULT_FREQUENCY must be 1, 2, 4 or 12, got %d", d.Frequency))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
