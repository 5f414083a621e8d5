// Package config provides configuration file support for pomomon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
)

// FileName is the config file name inside the data directory.
const FileName = "config.yaml"

// Config represents the pomomon configuration.
type Config struct {
	WorkDuration    time.Duration       `yaml:"work_duration"`
	BreakDuration   time.Duration       `yaml:"break_duration"`
	AutoPhase       bool                `yaml:"auto_phase"`
	AFKTimeout      time.Duration       `yaml:"afk_timeout"`
	SampleInterval  time.Duration       `yaml:"sample_interval"`
	FlushInterval   time.Duration       `yaml:"flush_interval"`
	CompactCooldown time.Duration       `yaml:"compact_cooldown"`
	Retention       time.Duration       `yaml:"retention"`
	FlushMode       domain.FlushMode    `yaml:"flush_mode"`
	OvertimeMode    domain.OvertimeMode `yaml:"overtime_mode"`
	ShowWarnings    bool                `yaml:"show_warnings"`
	LogPath         string              `yaml:"log_path,omitempty"` // empty = <data_dir>/usage_log.csv
	LogLevel        string              `yaml:"log_level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		WorkDuration:    25 * time.Minute,
		BreakDuration:   5 * time.Minute,
		AutoPhase:       false,
		AFKTimeout:      5 * time.Minute,
		SampleInterval:  time.Second,
		FlushInterval:   10 * time.Second,
		CompactCooldown: time.Hour,
		Retention:       30 * 24 * time.Hour,
		FlushMode:       domain.FlushAppend,
		OvertimeMode:    domain.OvertimePauseOnly,
		ShowWarnings:    true,
		LogLevel:        "info",
	}
}

// Path returns the config file path for a data directory.
func Path(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}

// Load loads configuration from <dataDir>/config.yaml.
// Returns default config if file doesn't exist.
func Load(dataDir string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(dataDir))
	if os.IsNotExist(err) {
		return cfg, nil // No config file is OK, use defaults
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to <dataDir>/config.yaml via temp file and rename,
// so a watching daemon never reads a half-written file.
func Save(dataDir string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dataDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmpPath, Path(dataDir)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	positive := map[string]time.Duration{
		"work_duration":    c.WorkDuration,
		"break_duration":   c.BreakDuration,
		"afk_timeout":      c.AFKTimeout,
		"sample_interval":  c.SampleInterval,
		"flush_interval":   c.FlushInterval,
		"compact_cooldown": c.CompactCooldown,
		"retention":        c.Retention,
	}
	for key, d := range positive {
		if d <= 0 {
			return fmt.Errorf("invalid config: %s must be positive, got %s", key, d)
		}
	}
	switch c.FlushMode {
	case domain.FlushAppend, domain.FlushMerge:
	default:
		return fmt.Errorf("invalid config: flush_mode %q (want append or merge)", c.FlushMode)
	}
	switch c.OvertimeMode {
	case domain.OvertimePauseOnly, domain.OvertimeScaled:
	default:
		return fmt.Errorf("invalid config: overtime_mode %q (want pause-only or scaled)", c.OvertimeMode)
	}
	return nil
}

// ResolveLogPath returns the interval log path, defaulting into dataDir.
func (c *Config) ResolveLogPath(dataDir string) string {
	if c.LogPath == "" {
		return filepath.Join(dataDir, "usage_log.csv")
	}
	return c.LogPath
}

// Keys lists the keys accepted by Set, in display order.
var Keys = []string{
	"work_duration", "break_duration", "auto_phase", "afk_timeout",
	"sample_interval", "flush_interval", "compact_cooldown", "retention",
	"flush_mode", "overtime_mode", "show_warnings", "log_path", "log_level",
}

// Set assigns one key from its string form. Durations accept Go syntax ("25m")
// or a bare number of minutes ("25").
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	var target *time.Duration
	switch key {
	case "work_duration":
		target = &c.WorkDuration
	case "break_duration":
		target = &c.BreakDuration
	case "afk_timeout":
		target = &c.AFKTimeout
	case "sample_interval":
		target = &c.SampleInterval
	case "flush_interval":
		target = &c.FlushInterval
	case "compact_cooldown":
		target = &c.CompactCooldown
	case "retention":
		target = &c.Retention
	case "auto_phase", "show_warnings":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if key == "auto_phase" {
			c.AutoPhase = b
		} else {
			c.ShowWarnings = b
		}
		return nil
	case "flush_mode":
		c.FlushMode = domain.FlushMode(value)
		return nil
	case "overtime_mode":
		c.OvertimeMode = domain.OvertimeMode(value)
		return nil
	case "log_path":
		c.LogPath = value
		return nil
	case "log_level":
		c.LogLevel = value
		return nil
	default:
		return fmt.Errorf("unknown config key %q", key)
	}

	d, err := parseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*target = d
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Minute, nil
	}
	return time.ParseDuration(s)
}
