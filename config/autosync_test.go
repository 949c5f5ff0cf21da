package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAutoSyncConfig_Defaults(t *testing.T) {
	cfg, err := LoadAutoSyncConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Interval())
	assert.Equal(t, 30*time.Second, cfg.TenantTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.BackfillDelay())
	assert.Equal(t, "0.01", cfg.PaidTolerance.String())
}

func TestLoadAutoSyncConfig_Env(t *testing.T) {
	t.Setenv("AUTOSYNC_ENABLED", "off")
	t.Setenv("AUTOSYNC_INTERVAL_SECONDS", "15")
	t.Setenv("AUTOSYNC_DEFAULT_TIMEZONE", "Asia/Yangon")
	t.Setenv("AUTOSYNC_PAID_TOLERANCE", "0.5")

	cfg, err := LoadAutoSyncConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 15, cfg.IntervalSeconds)
	assert.Equal(t, "Asia/Yangon", cfg.DefaultTimezone)
	assert.Equal(t, "0.5", cfg.PaidTolerance.String())
}

func TestLoadAutoSyncConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"AUTOSYNC_INTERVAL_SECONDS": "0",
		"AUTOSYNC_DEFAULT_TIMEZONE": "Not/AZone",
		"AUTOSYNC_PAID_TOLERANCE":   "-1",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := LoadAutoSyncConfig()
			assert.Error(t, err)
		})
	}

	t.Setenv("AUTOSYNC_PAID_TOLERANCE", "abc")
	_, err := LoadAutoSyncConfig()
	assert.Error(t, err)
}

func TestEnvBool(t *testing.T) {
	t.Setenv("X_FLAG", "YES")
	assert.True(t, EnvBool("X_FLAG", false))
	t.Setenv("X_FLAG", "0")
	assert.False(t, EnvBool("X_FLAG", true))
	t.Setenv("X_FLAG", "maybe")
	assert.True(t, EnvBool("X_FLAG", true))
}
