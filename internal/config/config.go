// Package config loads rigbeat's settings from defaults, a TOML file,
// RIGBEAT_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"io"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/rigbeat/internal/errors"
	"codeberg.org/mutker/rigbeat/internal/logger"
	"codeberg.org/mutker/rigbeat/internal/tier"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigFile = "/etc/rigbeat/rigbeat.toml"
	EnvPrefix         = "RIGBEAT"

	DefaultInterval   = 2 * time.Second
	DefaultTier       = "essential"
	DefaultListen     = ":9182"
	DefaultLogLevel   = "info"
	DefaultRetryEvery = 5
	DefaultStaleGrace = 3

	DefaultFastURL         = "http://127.0.0.1:8085/data.json"
	DefaultFastTimeout     = 750 * time.Millisecond
	DefaultLegacyNamespace = `root\LibreHardwareMonitor`
	DefaultLegacyTimeout   = 5 * time.Second

	DefaultHistoryPath          = "/var/lib/rigbeat/history.db"
	DefaultHistoryBatchSize     = 30
	DefaultHistoryFlushInterval = 30 * time.Second

	minInterval = 100 * time.Millisecond
)

type Config struct {
	Interval   time.Duration `mapstructure:"interval"`
	Tier       string        `mapstructure:"tier"`
	Listen     string        `mapstructure:"listen"`
	LogLevel   string        `mapstructure:"log_level"`
	RetryEvery int           `mapstructure:"retry_every"`
	StaleGrace int           `mapstructure:"stale_grace"`

	Fast    FastConfig    `mapstructure:"fast"`
	Legacy  LegacyConfig  `mapstructure:"legacy"`
	History HistoryConfig `mapstructure:"history"`

	// Once runs a single cycle, prints it and exits. Flag only.
	Once bool `mapstructure:"-"`
	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type FastConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LegacyConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Namespace string        `mapstructure:"namespace"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type HistoryConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Path          string        `mapstructure:"path"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("tier", DefaultTier)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("retry_every", DefaultRetryEvery)
	v.SetDefault("stale_grace", DefaultStaleGrace)

	v.SetDefault("fast.enabled", true)
	v.SetDefault("fast.url", DefaultFastURL)
	v.SetDefault("fast.timeout", DefaultFastTimeout)

	v.SetDefault("legacy.enabled", true)
	v.SetDefault("legacy.namespace", DefaultLegacyNamespace)
	v.SetDefault("legacy.timeout", DefaultLegacyTimeout)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", DefaultHistoryPath)
	v.SetDefault("history.batch_size", DefaultHistoryBatchSize)
	v.SetDefault("history.flush_interval", DefaultHistoryFlushInterval)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("rigbeat", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	fs.String("config", "", "Path to config file (default "+DefaultConfigFile+")")
	fs.Duration("interval", DefaultInterval, "Time between sensor polls")
	fs.String("tier", DefaultTier, "Sensor tier: essential, extended or diagnostic")
	fs.String("listen", DefaultListen, "Address to serve metrics on")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warn or error")
	fs.String("fast-url", DefaultFastURL, "URL of the monitoring agent's JSON endpoint")
	fs.Bool("no-legacy", false, "Never fall back to the WMI interface")
	fs.Bool("history", false, "Record committed cycles to the history database")
	fs.Bool("once", false, "Poll once, print the published series and exit")

	return fs
}

// flagKeys maps flag names onto config keys.
var flagKeys = map[string]string{
	"interval":  "interval",
	"tier":      "tier",
	"listen":    "listen",
	"log-level": "log_level",
	"fast-url":  "fast.url",
	"history":   "history.enabled",
}

// Load parses args (without the program name) and resolves the configuration.
func Load(args []string) (*Config, error) {
	errFactory := errors.New()

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	file, err := readConfigFile(v, fs)
	if err != nil {
		return nil, err
	}

	cfg := &Config{File: file}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if noLegacy, _ := fs.GetBool("no-legacy"); noLegacy {
		cfg.Legacy.Enabled = false
	}
	cfg.Once, _ = fs.GetBool("once")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// readConfigFile reads the file named by --config, RIGBEAT_CONFIG or the
// default path. Only the default path may be missing.
func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) (string, error) {
	path, _ := fs.GetString("config")
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err != nil {
			return "", nil
		}
		path = DefaultConfigFile
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return "", errors.New().Wrap(errors.ErrReadConfig, err).
			WithMessage("Failed to read config file " + path)
	}

	return path, nil
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval < minInterval {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval.String())
	}
	if _, err := tier.Parse(c.Tier); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.RetryEvery < 1 {
		return errFactory.WithData(errors.ErrInvalidConfig, "retry_every must be at least 1")
	}
	if c.StaleGrace < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "stale_grace must not be negative")
	}
	if c.Fast.Enabled && (c.Fast.URL == "" || c.Fast.Timeout <= 0) {
		return errFactory.WithData(errors.ErrInvalidConfig, "fast transport needs a url and a positive timeout")
	}
	if c.Legacy.Enabled && (c.Legacy.Namespace == "" || c.Legacy.Timeout <= 0) {
		return errFactory.WithData(errors.ErrInvalidConfig, "legacy transport needs a namespace and a positive timeout")
	}
	if !c.Once && c.Listen == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "listen address is empty")
	}

	return nil
}

// TierConfig returns the admission set for the configured tier.
func (c *Config) TierConfig() tier.Config {
	t, err := tier.Parse(c.Tier)
	if err != nil {
		t = tier.Essential
	}
	return tier.New(t)
}

// Level returns the configured log level.
func (c *Config) Level() logger.LogLevel {
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return logger.InfoLevel
	}
	return level
}

// Usage returns the flag help text.
func Usage() string {
	return newFlagSet().FlagUsages()
}
