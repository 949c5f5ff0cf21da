package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// AutoSyncConfig holds the tunables of the reconciliation monitor.
//
// Set via env:
// - AUTOSYNC_ENABLED (default true)
// - AUTOSYNC_INTERVAL_SECONDS (default 5)
// - AUTOSYNC_TENANT_TIMEOUT_SECONDS (default 30)
// - AUTOSYNC_BACKFILL_DELAY_MS (default 100)
// - AUTOSYNC_MAX_BACKFILL_DAYS (default 366)
// - AUTOSYNC_SYNC_LOOKBACK_DAYS (default 0, today only)
// - AUTOSYNC_DEFAULT_TIMEZONE (default America/Argentina/Buenos_Aires)
// - AUTOSYNC_PAID_TOLERANCE (default 0.01)
type AutoSyncConfig struct {
	Enabled              bool
	IntervalSeconds      int    `validate:"min=1,max=3600"`
	TenantTimeoutSeconds int    `validate:"min=1,max=3600"`
	BackfillDelayMs      int    `validate:"min=0,max=60000"`
	MaxBackfillDays      int    `validate:"min=1,max=3660"`
	SyncLookbackDays     int    `validate:"min=0,max=31"`
	DefaultTimezone      string `validate:"required,timezone"`
	PaidTolerance        decimal.Decimal
}

func DefaultAutoSyncConfig() AutoSyncConfig {
	return AutoSyncConfig{
		Enabled:              true,
		IntervalSeconds:      5,
		TenantTimeoutSeconds: 30,
		BackfillDelayMs:      100,
		MaxBackfillDays:      366,
		SyncLookbackDays:     0,
		DefaultTimezone:      "America/Argentina/Buenos_Aires",
		PaidTolerance:        decimal.NewFromFloat(0.01),
	}
}

// LoadAutoSyncConfig reads the env over the defaults and validates the result.
func LoadAutoSyncConfig() (AutoSyncConfig, error) {
	cfg := DefaultAutoSyncConfig()
	cfg.Enabled = envBoolDefault("AUTOSYNC_ENABLED", cfg.Enabled)
	cfg.IntervalSeconds = intFromEnv("AUTOSYNC_INTERVAL_SECONDS", cfg.IntervalSeconds)
	cfg.TenantTimeoutSeconds = intFromEnv("AUTOSYNC_TENANT_TIMEOUT_SECONDS", cfg.TenantTimeoutSeconds)
	cfg.BackfillDelayMs = intFromEnv("AUTOSYNC_BACKFILL_DELAY_MS", cfg.BackfillDelayMs)
	cfg.MaxBackfillDays = intFromEnv("AUTOSYNC_MAX_BACKFILL_DAYS", cfg.MaxBackfillDays)
	cfg.SyncLookbackDays = intFromEnv("AUTOSYNC_SYNC_LOOKBACK_DAYS", cfg.SyncLookbackDays)
	if tz := strings.TrimSpace(os.Getenv("AUTOSYNC_DEFAULT_TIMEZONE")); tz != "" {
		cfg.DefaultTimezone = tz
	}
	if raw := strings.TrimSpace(os.Getenv("AUTOSYNC_PAID_TOLERANCE")); raw != "" {
		tol, err := decimal.NewFromString(raw)
		if err != nil {
			return cfg, fmt.Errorf("AUTOSYNC_PAID_TOLERANCE: %w", err)
		}
		cfg.PaidTolerance = tol
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c AutoSyncConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid auto-sync config: %w", err)
	}
	if c.PaidTolerance.IsNegative() {
		return errors.New("invalid auto-sync config: paid tolerance must not be negative")
	}
	return nil
}

func (c AutoSyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c AutoSyncConfig) TenantTimeout() time.Duration {
	return time.Duration(c.TenantTimeoutSeconds) * time.Second
}

func (c AutoSyncConfig) BackfillDelay() time.Duration {
	return time.Duration(c.BackfillDelayMs) * time.Millisecond
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}

// EnvBool exposes the env flag parsing used across the service.
func EnvBool(key string, def bool) bool {
	return envBoolDefault(key, def)
}
