package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 8080
gpsbuddy:
  base_url: https://api.example.com
  company_id: "42"
  username: user
  password: pass
refresh:
  enabled: true
`))
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.GPSBuddy.TimeoutSeconds)
	assert.Equal(t, 120, cfg.GPSBuddy.SessionTimeoutSeconds)
	assert.Equal(t, 5*time.Minute, cfg.Refresh.Interval)
	assert.Equal(t, 30*time.Second, cfg.Refresh.SpeedInterval)
	assert.Equal(t, 30, cfg.Refresh.RetentionDays)
	assert.Equal(t, 94, cfg.Alerts.SpeedLimitKmh)
	assert.Equal(t, 5*time.Minute, cfg.Alerts.Cooldown)
	assert.Equal(t, 5*time.Minute, cfg.Alerts.Window)
	assert.Equal(t, "driver-alerts", cfg.Alerts.Channel)
	assert.Equal(t, 3, cfg.Alerts.TimezoneOffsetHours)
	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
}

func TestLoad_ExplicitValuesWin(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
gpsbuddy:
  base_url: https://api.example.com
  company_id: "42"
  username: user
  password: pass
  live_function: GetLiveInfo
  timeout_seconds: 30
refresh:
  interval_seconds: 60
  speed_interval_seconds: 10
  retention_days: 7
alerts:
  speed_limit_kmh: 80
  cooldown_seconds: 120
  timezone_offset_hours: -5
worker_pool:
  size: 4
`))
	require.NoError(t, err)

	assert.Equal(t, "GetLiveInfo", cfg.GPSBuddy.LiveFunction)
	assert.Equal(t, 30, cfg.GPSBuddy.TimeoutSeconds)
	assert.Equal(t, time.Minute, cfg.Refresh.Interval)
	assert.Equal(t, 10*time.Second, cfg.Refresh.SpeedInterval)
	assert.Equal(t, 7, cfg.Refresh.RetentionDays)
	assert.Equal(t, 80, cfg.Alerts.SpeedLimitKmh)
	assert.Equal(t, 2*time.Minute, cfg.Alerts.Cooldown)
	assert.Equal(t, -5, cfg.Alerts.TimezoneOffsetHours)
	assert.Equal(t, 4, cfg.WorkerPool.Size)
}

func TestLoad_ZeroTimezoneOffsetIsRespected(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
gpsbuddy:
  base_url: https://api.example.com
  company_id: "42"
  username: user
  password: pass
alerts:
  timezone_offset_hours: 0
`))
	require.NoError(t, err)

	// Explicit UTC+0 must not fall back to the default offset.
	assert.Equal(t, 0, cfg.Alerts.TimezoneOffsetHours)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGPSBuddyConfigValidate(t *testing.T) {
	full := GPSBuddyConfig{
		BaseURL:   "https://api.example.com",
		CompanyID: "42",
		Username:  "user",
		Password:  "pass",
	}
	assert.NoError(t, full.Validate())

	missing := GPSBuddyConfig{BaseURL: "https://api.example.com"}
	err := missing.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpsbuddy.username")
	assert.Contains(t, err.Error(), "gpsbuddy.password")
	assert.Contains(t, err.Error(), "gpsbuddy.company_id")
	assert.NotContains(t, err.Error(), "gpsbuddy.base_url")
}
