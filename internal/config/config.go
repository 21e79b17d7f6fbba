// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// Defaults for unset values.
const (
	DefaultBaseURL          = "https://api.notion.com"
	DefaultNotionVersion    = "2025-09-03"
	DefaultPageSize         = 100
	DefaultRequestTimeout   = 30 * time.Second
	DefaultRateLimitRetries = 2
	DefaultRefreshInterval  = 5 * time.Minute
	DefaultMaxRetries       = 3
	DefaultDebounce         = time.Second
	DefaultRetentionDays    = 90
)

// Config represents the application configuration
type Config struct {
	Notion        NotionConfig        `yaml:"notion"`
	Sync          SyncConfig          `yaml:"sync"`
	License       LicenseConfig       `yaml:"license"`
	Logging       LoggingConfig       `yaml:"logging"`
	Analytics     AnalyticsConfig     `yaml:"analytics"`
	Notifications NotificationsConfig `yaml:"notifications"`
	NoPrompt      bool                `yaml:"no_prompt"`
	OutputFormat  string              `yaml:"output_format"`
}

// NotionConfig holds Notion API settings
type NotionConfig struct {
	BaseURL          string `yaml:"base_url"`
	Version          string `yaml:"version"`
	PageSize         int    `yaml:"page_size"`
	RequestTimeout   string `yaml:"request_timeout"`
	RateLimitRetries *int   `yaml:"rate_limit_retries"`
}

// SyncConfig holds synchronization settings
type SyncConfig struct {
	RefreshInterval string `yaml:"refresh_interval"`
	HideCompleted   bool   `yaml:"hide_completed"`
	MaxRetries      *int   `yaml:"max_retries"`
	Watch           *bool  `yaml:"watch"`
	DebounceMs      int    `yaml:"debounce_ms"`
}

// LicenseConfig points at the license service
type LicenseConfig struct {
	SupabaseURL     string `yaml:"supabase_url"`
	SupabaseAnonKey string `yaml:"supabase_anon_key"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Debug             bool   `yaml:"debug"`
	Format            string `yaml:"format"`
	BackgroundEnabled *bool  `yaml:"background_enabled"` // default: true
}

// AnalyticsConfig holds analytics settings
type AnalyticsConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// NotificationsConfig controls alerts raised by `todosync watch`
type NotificationsConfig struct {
	Desktop    bool  `yaml:"desktop"`
	OnFailure  *bool `yaml:"on_failure"`  // default: true
	OnRecovery *bool `yaml:"on_recovery"` // default: true
	Log        *bool `yaml:"log"`         // default: true
	MaxSizeMB  int   `yaml:"max_size_mb"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Notion: NotionConfig{
			BaseURL:  DefaultBaseURL,
			Version:  DefaultNotionVersion,
			PageSize: DefaultPageSize,
		},
		OutputFormat: "text",
		Logging:      LoggingConfig{Format: "text"},
		Analytics: AnalyticsConfig{
			Enabled:       true,
			RetentionDays: DefaultRetentionDays,
		},
	}
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it is created from the sample config.
// Environment overrides are applied after parsing.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeSample(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "text"
	}
	return cfg, nil
}

func writeSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TODOSYNC_SUPABASE_URL"); v != "" {
		c.License.SupabaseURL = v
	}
	if v := os.Getenv("TODOSYNC_SUPABASE_ANON_KEY"); v != "" {
		c.License.SupabaseAnonKey = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.OutputFormat != "text" && c.OutputFormat != "json" {
		return fmt.Errorf("invalid output_format: %q (must be 'text' or 'json')", c.OutputFormat)
	}

	if c.Notion.PageSize != 0 && (c.Notion.PageSize < 1 || c.Notion.PageSize > 100) {
		return fmt.Errorf("notion.page_size must be between 1 and 100, got %d", c.Notion.PageSize)
	}
	if c.Notion.RateLimitRetries != nil && *c.Notion.RateLimitRetries < 0 {
		return fmt.Errorf("notion.rate_limit_retries cannot be negative")
	}
	if c.Notifications.MaxSizeMB < 0 {
		return fmt.Errorf("notifications.max_size_mb cannot be negative")
	}
	if c.Sync.MaxRetries != nil && *c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries cannot be negative")
	}

	durations := map[string]string{
		"notion.request_timeout": c.Notion.RequestTimeout,
		"sync.refresh_interval":  c.Sync.RefreshInterval,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %q", key, value)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", key, value)
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json", "logfmt":
	default:
		return fmt.Errorf("invalid logging.format: %q (must be text, json or logfmt)", c.Logging.Format)
	}

	return nil
}

// ApplyFlags applies CLI flag overrides to the configuration
func (c *Config) ApplyFlags(noPrompt, verbose bool, outputFormat string) {
	if noPrompt {
		c.NoPrompt = true
	}
	if verbose {
		c.Logging.Debug = true
	}
	if outputFormat != "" {
		c.OutputFormat = outputFormat
	}
}

// GetBaseURL returns the Notion API endpoint.
func (c *Config) GetBaseURL() string {
	if c.Notion.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.Notion.BaseURL, "/")
}

// GetNotionVersion returns the Notion-Version header value.
func (c *Config) GetNotionVersion() string {
	if c.Notion.Version == "" {
		return DefaultNotionVersion
	}
	return c.Notion.Version
}

// GetPageSize returns the query page size.
func (c *Config) GetPageSize() int {
	if c.Notion.PageSize <= 0 || c.Notion.PageSize > 100 {
		return DefaultPageSize
	}
	return c.Notion.PageSize
}

// GetRequestTimeout returns the per-request timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDurationOr(c.Notion.RequestTimeout, DefaultRequestTimeout)
}

// GetRateLimitRetries returns the number of automatic retries after a 429.
func (c *Config) GetRateLimitRetries() int {
	if c.Notion.RateLimitRetries == nil {
		return DefaultRateLimitRetries
	}
	return *c.Notion.RateLimitRetries
}

// GetRefreshInterval returns the background refresh interval.
func (c *Config) GetRefreshInterval() time.Duration {
	return parseDurationOr(c.Sync.RefreshInterval, DefaultRefreshInterval)
}

// GetMaxRetries returns how many operator retries an operation allows.
func (c *Config) GetMaxRetries() int {
	if c.Sync.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *c.Sync.MaxRetries
}

// IsWatchEnabled reports whether file changes trigger a sync. Default: true.
func (c *Config) IsWatchEnabled() bool {
	if c.Sync.Watch == nil {
		return true
	}
	return *c.Sync.Watch
}

// GetDebounce returns the quiet period after a file change.
func (c *Config) GetDebounce() time.Duration {
	if c.Sync.DebounceMs <= 0 {
		return DefaultDebounce
	}
	return time.Duration(c.Sync.DebounceMs) * time.Millisecond
}

// IsBackgroundLoggingEnabled returns whether background log file creation is enabled. Default: true.
func (c *Config) IsBackgroundLoggingEnabled() bool {
	if c.Logging.BackgroundEnabled == nil {
		return true
	}
	return *c.Logging.BackgroundEnabled
}

// IsNotifyOnFailure reports whether a failing watch sync raises a desktop alert. Default: true.
func (c *Config) IsNotifyOnFailure() bool {
	return boolOr(c.Notifications.OnFailure, true)
}

// IsNotifyOnRecovery reports whether the first good sync after a failure raises a desktop alert. Default: true.
func (c *Config) IsNotifyOnRecovery() bool {
	return boolOr(c.Notifications.OnRecovery, true)
}

// IsNotificationLogEnabled reports whether notifications are appended to a log file. Default: true.
func (c *Config) IsNotificationLogEnabled() bool {
	return boolOr(c.Notifications.Log, true)
}

// GetNotificationLogPath returns the notification log file.
func (c *Config) GetNotificationLogPath() string {
	return filepath.Join(GetDataDir(), "notifications.log")
}

// GetLogFormat returns the stderr log format.
func (c *Config) GetLogFormat() string {
	if c.Logging.Format == "" {
		return "text"
	}
	return strings.ToLower(c.Logging.Format)
}

// IsAnalyticsEnabled returns whether analytics is enabled
func (c *Config) IsAnalyticsEnabled() bool {
	return c.Analytics.Enabled
}

// GetAnalyticsRetentionDays returns the analytics retention. 0 keeps everything.
func (c *Config) GetAnalyticsRetentionDays() int {
	if c.Analytics.RetentionDays < 0 {
		return 0
	}
	return c.Analytics.RetentionDays
}

// GetBindingsPath returns the workspace bindings database.
func (c *Config) GetBindingsPath() string {
	return filepath.Join(GetDataDir(), "todosync.db")
}

// GetAnalyticsPath returns the analytics database.
func (c *Config) GetAnalyticsPath() string {
	return filepath.Join(GetDataDir(), "analytics.db")
}

// GetMachineIDPath returns the file holding this installation's machine id.
func (c *Config) GetMachineIDPath() string {
	return filepath.Join(GetDataDir(), "machine-id")
}

// GetBackgroundLogPath returns the log file used by `todosync watch`.
func (c *Config) GetBackgroundLogPath() string {
	return filepath.Join(GetDataDir(), "watch.log")
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// getXDGDir returns a directory path following XDG spec.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "todosync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "todosync")
	}
	return filepath.Join(home, fallbackPath, "todosync")
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}
