// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DeviceHeader   string        `yaml:"device_header"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables cache, lock and throttling
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	AccessTTL       time.Duration `yaml:"access_ttl"`
	RefreshTTL      time.Duration `yaml:"refresh_ttl"`
	LoginRateLimit  int           `yaml:"login_rate_limit"` // attempts per window per username
	LoginRateWindow time.Duration `yaml:"login_rate_window"`
}

type SubscriptionConfig struct {
	TrialDays int    `yaml:"trial_days"`
	TrialPlan string `yaml:"trial_plan"`
}

type PaymentConfig struct {
	InstructionsURL string `yaml:"instructions_url"`
}

type QuotaConfig struct {
	Timezone string `yaml:"timezone"` // IANA name; the day boundary of the AI counter
}

type SchedulerConfig struct {
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
	PendingTTL     time.Duration `yaml:"pending_ttl"` // 0 keeps stale PENDING grants forever
	LockTTL        time.Duration `yaml:"lock_ttl"`

	// RebuildInterval runs the full cache rebuild periodically; 0 disables it.
	RebuildInterval time.Duration `yaml:"rebuild_interval"`
}

type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Auth         AuthConfig         `yaml:"auth"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Payment      PaymentConfig      `yaml:"payment"`
	Quota        QuotaConfig        `yaml:"quota"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads -config and -dev from the command line and loads the file.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()
	return Load(configPath, dev)
}

// Load reads the YAML file at path, applies environment overrides and defaults.
func Load(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse decodes raw YAML and finishes the config like Load does.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	if _, err := time.LoadLocation(cfg.Quota.Timezone); err != nil {
		return nil, fmt.Errorf("quota.timezone: %w", err)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}
	if cfg.HTTP.DeviceHeader == "" {
		cfg.HTTP.DeviceHeader = "X-Device-Id"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Auth.AccessTTL <= 0 {
		cfg.Auth.AccessTTL = 15 * time.Minute
	}
	if cfg.Auth.RefreshTTL <= 0 {
		cfg.Auth.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Auth.LoginRateLimit <= 0 {
		cfg.Auth.LoginRateLimit = 10
	}
	if cfg.Auth.LoginRateWindow <= 0 {
		cfg.Auth.LoginRateWindow = time.Minute
	}
	if cfg.Subscription.TrialDays <= 0 {
		cfg.Subscription.TrialDays = 3
	}
	if cfg.Subscription.TrialPlan == "" {
		cfg.Subscription.TrialPlan = "basic"
	}
	if cfg.Quota.Timezone == "" {
		cfg.Quota.Timezone = "UTC"
	}
	if cfg.Scheduler.ExpiryInterval <= 0 {
		cfg.Scheduler.ExpiryInterval = 5 * time.Minute
	}
	if cfg.Scheduler.LockTTL <= 0 {
		cfg.Scheduler.LockTTL = time.Minute
	}
	if cfg.Scheduler.RebuildInterval < 0 {
		cfg.Scheduler.RebuildInterval = 0
	}
	if cfg.Scheduler.PendingTTL < 0 {
		cfg.Scheduler.PendingTTL = 0
	}
}

// TrialLength is the duration of a free trial.
func (c *Config) TrialLength() time.Duration {
	return time.Duration(c.Subscription.TrialDays) * 24 * time.Hour
}

// QuotaLocation returns the timezone that defines the AI counter's day.
func (c *Config) QuotaLocation() *time.Location {
	loc, err := time.LoadLocation(c.Quota.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
