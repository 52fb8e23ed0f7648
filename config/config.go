package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	GPSBuddy   GPSBuddyConfig   `yaml:"gpsbuddy"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// GPSBuddyConfig holds the upstream telemetry API connection settings.
type GPSBuddyConfig struct {
	BaseURL               string `yaml:"base_url"`
	CompanyID             string `yaml:"company_id"`
	Username              string `yaml:"username"`
	Password              string `yaml:"password"`
	GroupID               string `yaml:"group_id"`
	LiveFunction          string `yaml:"live_function"`
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	SessionTimeoutSeconds int    `yaml:"session_timeout_seconds"`
	HTTPProxy             string `yaml:"http_proxy"`
}

// Validate reports the GPSBuddy keys that must be present before any
// upstream call can be attempted.
func (g *GPSBuddyConfig) Validate() error {
	var missing []string
	if g.BaseURL == "" {
		missing = append(missing, "gpsbuddy.base_url")
	}
	if g.Username == "" {
		missing = append(missing, "gpsbuddy.username")
	}
	if g.Password == "" {
		missing = append(missing, "gpsbuddy.password")
	}
	if g.CompanyID == "" {
		missing = append(missing, "gpsbuddy.company_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RefreshConfig holds the polling cadences and history retention.
type RefreshConfig struct {
	Enabled              bool          `yaml:"enabled"`
	IntervalSeconds      int           `yaml:"interval_seconds"`
	Interval             time.Duration `yaml:"-"` // Ignored by YAML parser
	SpeedIntervalSeconds int           `yaml:"speed_interval_seconds"`
	SpeedInterval        time.Duration `yaml:"-"`
	RetentionDays        int           `yaml:"retention_days"`
}

// AlertsConfig holds the speed-violation alert tuning.
type AlertsConfig struct {
	SpeedLimitKmh       int           `yaml:"speed_limit_kmh"`
	CooldownSeconds     int           `yaml:"cooldown_seconds"`
	Cooldown            time.Duration `yaml:"-"`
	WindowSeconds       int           `yaml:"window_seconds"`
	Window              time.Duration `yaml:"-"`
	Channel             string        `yaml:"channel"`
	TimezoneOffset      *int          `yaml:"timezone_offset_hours"` // nil means unset; 0 is a valid offset
	TimezoneOffsetHours int           `yaml:"-"`
	WebhookURL          string        `yaml:"webhook_url"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.GPSBuddy.TimeoutSeconds <= 0 {
		cfg.GPSBuddy.TimeoutSeconds = 15
	}
	if cfg.GPSBuddy.SessionTimeoutSeconds <= 0 {
		cfg.GPSBuddy.SessionTimeoutSeconds = 120
	}

	if cfg.Refresh.IntervalSeconds <= 0 {
		cfg.Refresh.IntervalSeconds = 300
	}
	cfg.Refresh.Interval = time.Duration(cfg.Refresh.IntervalSeconds) * time.Second

	if cfg.Refresh.SpeedIntervalSeconds <= 0 {
		cfg.Refresh.SpeedIntervalSeconds = 30
	}
	cfg.Refresh.SpeedInterval = time.Duration(cfg.Refresh.SpeedIntervalSeconds) * time.Second

	if cfg.Refresh.RetentionDays <= 0 {
		cfg.Refresh.RetentionDays = 30
	}

	if cfg.Alerts.SpeedLimitKmh <= 0 {
		cfg.Alerts.SpeedLimitKmh = 94
	}
	if cfg.Alerts.CooldownSeconds <= 0 {
		cfg.Alerts.CooldownSeconds = 300
	}
	cfg.Alerts.Cooldown = time.Duration(cfg.Alerts.CooldownSeconds) * time.Second
	if cfg.Alerts.WindowSeconds <= 0 {
		cfg.Alerts.WindowSeconds = 300
	}
	cfg.Alerts.Window = time.Duration(cfg.Alerts.WindowSeconds) * time.Second
	if cfg.Alerts.Channel == "" {
		cfg.Alerts.Channel = "driver-alerts"
	}
	if cfg.Alerts.TimezoneOffset != nil {
		cfg.Alerts.TimezoneOffsetHours = *cfg.Alerts.TimezoneOffset
	} else {
		cfg.Alerts.TimezoneOffsetHours = 3
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
