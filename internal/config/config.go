// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // devices often ship without a zoneinfo database

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Sync backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendHub    = "hub"
	BackendS3     = "s3"
)

// ConfigFileEnv names the environment variable holding the TOML file path.
const ConfigFileEnv = "HEDGE_CONFIG"

// Duration is a time.Duration read from strings such as "1s" or "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds application configuration
type Config struct {
	DataDir   string `toml:"data_dir"` // Base directory for all databases, always absolute after Load
	LogLevel  string `toml:"log_level"`
	LogPretty bool   `toml:"log_pretty"`
	Port      int    `toml:"port"`
	DevMode   bool   `toml:"dev_mode"`
	DeviceID  string `toml:"device_id"` // Overrides the id persisted in the device database
	Timezone  string `toml:"timezone"`  // Calendar used for daily records and market hours

	Sync   SyncConfig   `toml:"sync"`
	Hub    HubConfig    `toml:"hub"`
	S3     S3Config     `toml:"s3"`
	Quotes QuotesConfig `toml:"quotes"`
	OCR    OCRConfig    `toml:"ocr"`
}

// SyncConfig selects the shared store and tunes the write pipeline.
type SyncConfig struct {
	Backend      string   `toml:"backend"`
	Debounce     Duration `toml:"debounce"`
	GracePeriod  Duration `toml:"grace_period"`
	WriteTimeout Duration `toml:"write_timeout"`
}

// HubConfig holds both the hub server settings and the device's hub URL.
type HubConfig struct {
	URL          string `toml:"url"`
	Port         int    `toml:"port"`
	HistoryLimit int    `toml:"history_limit"`
}

// S3Config points at an S3-compatible object holding the shared document.
type S3Config struct {
	Bucket          string   `toml:"bucket"`
	Key             string   `toml:"key"`
	Region          string   `toml:"region"`
	Endpoint        string   `toml:"endpoint"`
	AccessKeyID     string   `toml:"access_key_id"`
	SecretAccessKey string   `toml:"secret_access_key"`
	PollInterval    Duration `toml:"poll_interval"`
}

// QuotesConfig configures the quote proxy and refresh schedules.
type QuotesConfig struct {
	URL               string `toml:"url"`
	RefreshSchedule   string `toml:"refresh_schedule"`
	DailyHighSchedule string `toml:"daily_high_schedule"`
}

// OCRConfig configures the screenshot recognition service.
type OCRConfig struct {
	URL string `toml:"url"`
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	dataDir := "data"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".hedgebook")
	}

	return &Config{
		DataDir:  dataDir,
		LogLevel: "info",
		Port:     8080,
		Timezone: "Asia/Taipei",
		Sync: SyncConfig{
			Backend:      BackendNone,
			Debounce:     Duration{time.Second},
			GracePeriod:  Duration{3 * time.Second},
			WriteTimeout: Duration{30 * time.Second},
		},
		Hub: HubConfig{
			Port:         8090,
			HistoryLimit: 50,
		},
		S3: S3Config{
			Key:          "hedgebook/portfolio.json",
			Region:       "auto",
			PollInterval: Duration{15 * time.Second},
		},
		Quotes: QuotesConfig{
			RefreshSchedule:   "0 * 9-13 * * MON-FRI",
			DailyHighSchedule: "30 */5 * * * *",
		},
	}
}

// Load reads configuration with priority: defaults -> TOML file named by
// HEDGE_CONFIG -> environment. A .env file in the working directory is
// loaded into the environment first and never overrides variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromFile(os.Getenv(ConfigFileEnv))
}

// LoadFromFile is Load with an explicit file path. An empty path skips the file.
func LoadFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	cfg.DataDir = absDataDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies HEDGE_* environment variable overrides to config.
func applyEnvOverrides(cfg *Config) error {
	cfg.DataDir = getEnv("HEDGE_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = getEnv("HEDGE_LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = getEnvAsBool("HEDGE_LOG_PRETTY", cfg.LogPretty)
	cfg.Port = getEnvAsInt("HEDGE_PORT", cfg.Port)
	cfg.DevMode = getEnvAsBool("HEDGE_DEV_MODE", cfg.DevMode)
	cfg.DeviceID = getEnv("HEDGE_DEVICE_ID", cfg.DeviceID)
	cfg.Timezone = getEnv("HEDGE_TIMEZONE", cfg.Timezone)

	cfg.Sync.Backend = strings.ToLower(getEnv("HEDGE_SYNC_BACKEND", cfg.Sync.Backend))

	cfg.Hub.URL = getEnv("HEDGE_HUB_URL", cfg.Hub.URL)
	cfg.Hub.Port = getEnvAsInt("HEDGE_HUB_PORT", cfg.Hub.Port)
	cfg.Hub.HistoryLimit = getEnvAsInt("HEDGE_HUB_HISTORY_LIMIT", cfg.Hub.HistoryLimit)

	cfg.S3.Bucket = getEnv("HEDGE_S3_BUCKET", cfg.S3.Bucket)
	cfg.S3.Key = getEnv("HEDGE_S3_KEY", cfg.S3.Key)
	cfg.S3.Region = getEnv("HEDGE_S3_REGION", cfg.S3.Region)
	cfg.S3.Endpoint = getEnv("HEDGE_S3_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.AccessKeyID = getEnv("HEDGE_S3_ACCESS_KEY_ID", cfg.S3.AccessKeyID)
	cfg.S3.SecretAccessKey = getEnv("HEDGE_S3_SECRET_ACCESS_KEY", cfg.S3.SecretAccessKey)

	cfg.Quotes.URL = getEnv("HEDGE_QUOTES_URL", cfg.Quotes.URL)
	cfg.Quotes.RefreshSchedule = getEnv("HEDGE_QUOTES_REFRESH_SCHEDULE", cfg.Quotes.RefreshSchedule)
	cfg.Quotes.DailyHighSchedule = getEnv("HEDGE_QUOTES_DAILY_HIGH_SCHEDULE", cfg.Quotes.DailyHighSchedule)
	cfg.OCR.URL = getEnv("HEDGE_OCR_URL", cfg.OCR.URL)

	durations := []struct {
		key string
		dst *Duration
	}{
		{"HEDGE_SYNC_DEBOUNCE", &cfg.Sync.Debounce},
		{"HEDGE_SYNC_GRACE_PERIOD", &cfg.Sync.GracePeriod},
		{"HEDGE_SYNC_WRITE_TIMEOUT", &cfg.Sync.WriteTimeout},
		{"HEDGE_S3_POLL_INTERVAL", &cfg.S3.PollInterval},
	}
	for _, d := range durations {
		value := os.Getenv(d.key)
		if value == "" {
			continue
		}
		if err := d.dst.UnmarshalText([]byte(value)); err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.key, value, err)
		}
	}
	return nil
}

// Validate checks the configuration for values the daemons cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be in 1-65535, got %d", c.Port))
	}
	if c.Hub.Port <= 0 || c.Hub.Port > 65535 {
		errs = append(errs, fmt.Errorf("hub port must be in 1-65535, got %d", c.Hub.Port))
	}
	if c.Hub.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("hub history limit must be positive, got %d", c.Hub.HistoryLimit))
	}
	if c.Sync.Debounce.Duration <= 0 {
		errs = append(errs, fmt.Errorf("sync debounce must be positive, got %s", c.Sync.Debounce))
	}
	if c.Sync.GracePeriod.Duration <= 0 {
		errs = append(errs, fmt.Errorf("sync grace period must be positive, got %s", c.Sync.GracePeriod))
	}
	if c.Sync.WriteTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("sync write timeout must be positive, got %s", c.Sync.WriteTimeout))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err))
	}

	switch c.Sync.Backend {
	case BackendNone, BackendMemory:
	case BackendHub:
		if c.Hub.URL == "" {
			errs = append(errs, errors.New("sync backend hub requires a hub url"))
		}
	case BackendS3:
		if c.S3.Bucket == "" || c.S3.Key == "" {
			errs = append(errs, errors.New("sync backend s3 requires a bucket and key"))
		}
		if c.S3.PollInterval.Duration <= 0 {
			errs = append(errs, fmt.Errorf("s3 poll interval must be positive, got %s", c.S3.PollInterval))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sync backend %q: use none, memory, hub or s3", c.Sync.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Location returns the configured time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
