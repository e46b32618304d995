// Package config provides configuration management for the scanner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"nscan/internal/analysis/patterns"
	"nscan/internal/errors"
	"nscan/internal/logging"
	"nscan/internal/scheduler"
)

// Config holds all application configuration.
type Config struct {
	Scan      ScanConfig        `mapstructure:"scan"`
	Data      DataConfig        `mapstructure:"data"`
	Detection DetectionConfig   `mapstructure:"detection"`
	Schedule  ScheduleConfig    `mapstructure:"schedule"`
	Notify    NotifyConfig      `mapstructure:"notify"`
	Log       logging.LogConfig `mapstructure:"log"`
}

// ScanConfig holds scan-run configuration.
type ScanConfig struct {
	Workers       int           `mapstructure:"workers"`
	SymbolTimeout time.Duration `mapstructure:"symbol_timeout"`
	RecentDays    int           `mapstructure:"recent_days"` // 0 keeps every confirmation
	Modes         string        `mapstructure:"modes"`       // standalone, breakout, all
	Chips         bool          `mapstructure:"chips"`
	Shapes        bool          `mapstructure:"shapes"`
	OutputDir     string        `mapstructure:"output_dir"`
}

// DataConfig holds data source configuration.
type DataConfig struct {
	Dir     string `mapstructure:"dir"`
	Pattern string `mapstructure:"pattern"`
	DBPath  string `mapstructure:"db_path"`
}

// DetectionConfig holds the detector parameters of each mode.
type DetectionConfig struct {
	Standalone patterns.Params `mapstructure:"standalone"`
	Breakout   patterns.Params `mapstructure:"breakout"`
}

// ScheduleConfig holds the recurring scan schedule.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// NotifyConfig holds notification settings for scheduled scans.
type NotifyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Level   string        `mapstructure:"level"` // all, patterns_only, errors_only
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/nscan"
	}
	return filepath.Join(home, ".config", "nscan")
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	dir := DefaultConfigDir()
	return &Config{
		Scan: ScanConfig{
			Workers:       4,
			SymbolTimeout: 30 * time.Second,
			RecentDays:    0,
			Modes:         string(patterns.ModeBreakout),
			OutputDir:     filepath.Join(dir, "output"),
		},
		Data: DataConfig{
			Dir:     "data",
			Pattern: "*.txt",
			DBPath:  filepath.Join(dir, "nscan.db"),
		},
		Detection: DetectionConfig{
			Standalone: patterns.StandaloneParams(),
			Breakout:   patterns.BreakoutParams(),
		},
		Schedule: ScheduleConfig{Cron: "0 30 15 * * 1-5"},
		Notify: NotifyConfig{
			Level:   "all",
			Webhook: WebhookConfig{Timeout: 10 * time.Second},
		},
		Log: logging.DefaultLogConfig(),
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	loadDotEnv(configDir)

	cfg, err := loadConfigFile(configDir, "config")
	if err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Apply environment variable overrides
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv reads .env files from the working directory and the config directory.
// Variables already present in the environment win.
func loadDotEnv(configDir string) {
	for _, path := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

func loadConfigFile(configDir, name string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, create template and continue with defaults
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("scan.workers", d.Scan.Workers)
	v.SetDefault("scan.symbol_timeout", d.Scan.SymbolTimeout)
	v.SetDefault("scan.recent_days", d.Scan.RecentDays)
	v.SetDefault("scan.modes", d.Scan.Modes)
	v.SetDefault("scan.chips", d.Scan.Chips)
	v.SetDefault("scan.shapes", d.Scan.Shapes)
	v.SetDefault("scan.output_dir", d.Scan.OutputDir)

	v.SetDefault("data.dir", d.Data.Dir)
	v.SetDefault("data.pattern", d.Data.Pattern)
	v.SetDefault("data.db_path", d.Data.DBPath)

	setParamDefaults(v, "detection.standalone", d.Detection.Standalone)
	setParamDefaults(v, "detection.breakout", d.Detection.Breakout)

	v.SetDefault("schedule.cron", d.Schedule.Cron)

	v.SetDefault("notify.enabled", d.Notify.Enabled)
	v.SetDefault("notify.level", d.Notify.Level)
	v.SetDefault("notify.webhook.enabled", d.Notify.Webhook.Enabled)
	v.SetDefault("notify.webhook.url", d.Notify.Webhook.URL)
	v.SetDefault("notify.webhook.timeout", d.Notify.Webhook.Timeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.console", d.Log.Console)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.file_path", d.Log.FilePath)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
}

func setParamDefaults(v *viper.Viper, prefix string, p patterns.Params) {
	defaults := map[string]interface{}{
		"retracement_threshold":            p.RetracementThreshold,
		"max_retracement_days":             p.MaxRetracementDays,
		"volume_surge_multiple":            p.VolumeSurgeMultiple,
		"volume_quiet_multiple":            p.VolumeQuietMultiple,
		"breakout_confirm_margin":          p.BreakoutConfirmMargin,
		"verification_days":                p.VerificationDays,
		"consolidation_min_days":           p.ConsolidationMinDays,
		"consolidation_max_volatility":     p.ConsolidationMaxVolatility,
		"consolidation_volume_quiet_ratio": p.ConsolidationVolumeQuietRatio,
		"consolidation_lookahead":          p.ConsolidationLookahead,
		"merge_zones":                      p.MergeZones,
		"target_multiple":                  p.TargetMultiple,
		"stop_buffer":                      p.StopBuffer,
		"entry_buffer":                     p.EntryBuffer,
		"target_year":                      p.TargetYear,
		"target_month":                     p.TargetMonth,
		"lookback_months":                  p.LookbackMonths,
		"extremum_window":                  p.ExtremumWindow,
	}
	for key, value := range defaults {
		v.SetDefault(prefix+"."+key, value)
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("NSCAN_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("NSCAN_DB_PATH"); v != "" {
		cfg.Data.DBPath = v
	}
	if v := os.Getenv("NSCAN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NSCAN_WEBHOOK_URL"); v != "" {
		cfg.Notify.Webhook.URL = v
		cfg.Notify.Webhook.Enabled = true
	}
	if v := os.Getenv("NSCAN_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.NewValidationError("NSCAN_WORKERS", v, "must be an integer")
		}
		cfg.Scan.Workers = n
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Scan.Workers < 1 {
		return errors.Wrapf(errors.ErrConfigInvalid, "scan.workers must be at least 1, got %d", c.Scan.Workers)
	}
	if c.Scan.SymbolTimeout < 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "scan.symbol_timeout must not be negative")
	}
	if c.Scan.RecentDays < 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "scan.recent_days must not be negative")
	}
	if _, err := patterns.ParseModes(c.Scan.Modes); err != nil {
		return errors.Wrap(errors.ErrConfigInvalid, "scan.modes: "+err.Error())
	}

	if err := c.Detection.Standalone.Validate(); err != nil {
		return errors.Wrap(err, "detection.standalone")
	}
	if err := c.Detection.Breakout.Validate(); err != nil {
		return errors.Wrap(err, "detection.breakout")
	}

	switch c.Notify.Level {
	case "", "all", "patterns_only", "errors_only":
	default:
		return errors.Wrapf(errors.ErrConfigInvalid, "notify.level must be all, patterns_only or errors_only, got %q", c.Notify.Level)
	}
	if c.Notify.Webhook.Enabled && c.Notify.Webhook.URL == "" {
		return errors.Wrapf(errors.ErrConfigInvalid, "notify.webhook.url is required when the webhook is enabled")
	}

	if c.Schedule.Cron != "" {
		if err := scheduler.Validate(c.Schedule.Cron); err != nil {
			return errors.Wrap(errors.ErrConfigInvalid, "schedule.cron: "+err.Error())
		}
	}
	return nil
}

// ParamsFor returns the detection parameters of a mode.
func (c *Config) ParamsFor(mode patterns.Mode) patterns.Params {
	if mode == patterns.ModeStandalone {
		return c.Detection.Standalone
	}
	return c.Detection.Breakout
}
