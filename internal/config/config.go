// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/sipflow/internal/core"
)

// GlobalConfig represents the top-level static configuration.
// Maps to the `sipflow:` root key in YAML.
type GlobalConfig struct {
	Log     LogConfig           `mapstructure:"log"`
	Metrics MetricsConfig       `mapstructure:"metrics"`
	Capture CaptureConfig       `mapstructure:"capture"`
	Filter  FilterConfig        `mapstructure:"filter"`
	Ignore  map[string][]string `mapstructure:"ignore"` // attribute name → hidden values
	Display DisplayConfig       `mapstructure:"display"`
}

// ─── Capture ───

// CaptureConfig controls ingestion and the capture sources.
type CaptureConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	IgnoreIncomplete bool     `mapstructure:"ignore_incomplete"` // drop calls not opened by an initial request
	RCFiles          []string `mapstructure:"rc_files"`          // set/ignore files, read in order
	Engine           string   `mapstructure:"engine"`            // pcap / afpacket
	Snaplen          int      `mapstructure:"snaplen"`
	Promisc          bool     `mapstructure:"promisc"`
	BPF              string   `mapstructure:"bpf"`
	TimeoutMs        int      `mapstructure:"timeout_ms"`
	BufferSizeMB     int      `mapstructure:"buffer_size_mb"` // afpacket ring
	FanoutID         uint16   `mapstructure:"fanout_id"`      // afpacket, 0 disables
	WriteFile        string   `mapstructure:"write_file"`     // save captured frames as pcap
}

// ─── Filter ───

// FilterConfig holds the call list filters.
type FilterConfig struct {
	Enabled bool            `mapstructure:"enabled"`
	SIPFrom string          `mapstructure:"sipfrom"` // substring of From user@host
	SIPTo   string          `mapstructure:"sipto"`   // substring of To user@host
	Src     string          `mapstructure:"src"`     // prefix of source address
	Dst     string          `mapstructure:"dst"`     // prefix of destination address
	Methods map[string]bool `mapstructure:"methods"` // starting method → shown
}

// ─── Display ───

// DisplayConfig holds the call list layout.
type DisplayConfig struct {
	Columns    []ColumnConfig `mapstructure:"columns"`
	Autoscroll bool           `mapstructure:"autoscroll"`
}

// ColumnConfig is one call list column.
type ColumnConfig struct {
	Attr  string `mapstructure:"attr"`
	Width int    `mapstructure:"width"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `sipflow: ...`.
type configRoot struct {
	SIPFlow GlobalConfig `mapstructure:"sipflow"`
}

// Load loads configuration from file. An empty path yields the defaults.
// Env vars override file values: key "sipflow.log.level" → SIPFLOW_LOG_LEVEL.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.SIPFlow

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *GlobalConfig {
	cfg, err := Load("")
	if err != nil {
		// defaults are static and always valid
		panic(err)
	}
	return cfg
}

// setDefaults sets default values for configuration.
// All keys use "sipflow." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("sipflow.log.level", "info")
	v.SetDefault("sipflow.log.format", "text")
	v.SetDefault("sipflow.log.outputs.file.enabled", false)
	v.SetDefault("sipflow.log.outputs.file.path", "/var/log/sipflow/sipflow.log")
	v.SetDefault("sipflow.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("sipflow.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("sipflow.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("sipflow.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("sipflow.metrics.enabled", false)
	v.SetDefault("sipflow.metrics.listen", ":9091")
	v.SetDefault("sipflow.metrics.path", "/metrics")

	// Capture defaults
	v.SetDefault("sipflow.capture.enabled", true)
	v.SetDefault("sipflow.capture.ignore_incomplete", true)
	v.SetDefault("sipflow.capture.engine", "pcap")
	v.SetDefault("sipflow.capture.snaplen", 65535)
	v.SetDefault("sipflow.capture.timeout_ms", 500)
	v.SetDefault("sipflow.capture.buffer_size_mb", 8)
	v.SetDefault("sipflow.capture.promisc", true)
	v.SetDefault("sipflow.capture.bpf", "port 5060")

	// Filter defaults: every initial request shown
	v.SetDefault("sipflow.filter.enabled", false)
	for _, m := range []string{"register", "invite", "subscribe", "notify", "options", "publish", "message"} {
		v.SetDefault("sipflow.filter.methods."+m, true)
	}

	// Display defaults
	v.SetDefault("sipflow.display.autoscroll", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: log level %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: log format %s (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}

	// ── Capture ──
	if cfg.Capture.Engine != "pcap" && cfg.Capture.Engine != "afpacket" {
		return fmt.Errorf("%w: capture.engine %s (must be pcap/afpacket)", core.ErrConfigInvalid, cfg.Capture.Engine)
	}
	if cfg.Capture.Snaplen <= 0 {
		return fmt.Errorf("%w: capture.snaplen must be positive, got %d", core.ErrConfigInvalid, cfg.Capture.Snaplen)
	}

	// ── Display ──
	for i, c := range cfg.Display.Columns {
		if c.Attr == "" {
			return fmt.Errorf("%w: display.columns[%d] has no attr", core.ErrConfigInvalid, i)
		}
		if c.Width < 0 {
			return fmt.Errorf("%w: display.columns[%d] width %d", core.ErrConfigInvalid, i, c.Width)
		}
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics.enabled=true", core.ErrConfigInvalid)
	}

	return nil
}
