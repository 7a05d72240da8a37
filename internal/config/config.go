// Package config loads and validates the devscope configuration file.
//
// The file is TOML at ~/.config/devscope/config.toml. Missing file means
// defaults. Only keys present in the file override defaults; unknown keys
// produce warnings rather than errors.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Scanner ScanConfig
	Health  HealthConfig
	API     APIConfig
	Display DisplayConfig
	Storage StorageConfig
}

// ScanConfig is the per-cycle scan configuration. The engines re-read it at
// the start of every cycle, so edits take effect on the next tick.
type ScanConfig struct {
	IntervalSeconds       int      `toml:"interval_seconds"`
	ScriptIntervalSeconds int      `toml:"script_interval_seconds"`
	Ports                 []int    `toml:"ports"`
	Ranges                [][2]int `toml:"ranges"`
	ScanAll               bool     `toml:"scan_all"`
}

type HealthConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

type APIConfig struct {
	Addr string `toml:"addr"` // empty disables the HTTP API
}

type DisplayConfig struct {
	RefreshRateMS int `toml:"refresh_rate_ms"`
}

type StorageConfig struct {
	DBPath        string `toml:"db_path"`
	RetentionDays int    `toml:"retention_days"`
}

// Interval returns the server scan interval as a duration.
func (s ScanConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// ScriptInterval returns the script scan interval as a duration.
func (s ScanConfig) ScriptInterval() time.Duration {
	return time.Duration(s.ScriptIntervalSeconds) * time.Second
}

// Interval returns the health probe interval as a duration.
func (h HealthConfig) Interval() time.Duration {
	return time.Duration(h.IntervalSeconds) * time.Second
}

// IncludesPort reports whether a listening port passes the configured
// filter. ScanAll bypasses the filter entirely; otherwise the port must
// match an explicit value or fall inside one of the inclusive ranges.
func (s ScanConfig) IncludesPort(port int) bool {
	if s.ScanAll {
		return true
	}
	for _, p := range s.Ports {
		if p == port {
			return true
		}
	}
	for _, r := range s.Ranges {
		if port >= r[0] && port <= r[1] {
			return true
		}
	}
	return false
}

func DefaultConfig() Config {
	return Config{
		Scanner: ScanConfig{
			IntervalSeconds:       5,
			ScriptIntervalSeconds: 10,
			Ports:                 []int{3000, 3001, 4200, 5000, 8000, 8080, 8888, 9000},
			Ranges:                [][2]int{{5170, 5199}},
		},
		Health: HealthConfig{
			IntervalSeconds: 10,
		},
		API: APIConfig{
			Addr: "",
		},
		Display: DisplayConfig{
			RefreshRateMS: 1000,
		},
		Storage: StorageConfig{
			DBPath:        "",
			RetentionDays: 14,
		},
	}
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "devscope", "config.toml")
}

func Load() (*LoadResult, error) {
	return LoadFrom(defaultConfigPath())
}

func LoadFrom(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadResult{Config: DefaultConfig()}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromString(string(data))
}

// LoadFromString parses a config document, applying only the keys the
// document actually sets on top of the defaults.
func LoadFromString(data string) (*LoadResult, error) {
	cfg := DefaultConfig()
	result := &LoadResult{Config: cfg}

	if data == "" {
		return result, nil
	}

	var raw map[string]any
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	knownTopLevel := map[string]bool{
		"scanner": true,
		"health":  true,
		"api":     true,
		"display": true,
		"storage": true,
	}
	for key := range raw {
		if !knownTopLevel[key] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown config key: %q", key))
		}
	}

	var tf tomlFile
	if _, err := toml.Decode(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	mergeFromRaw(&result.Config, &tf, raw)

	if err := validate(&result.Config); err != nil {
		return nil, err
	}

	return result, nil
}

type tomlFile struct {
	Scanner *ScanConfig    `toml:"scanner"`
	Health  *HealthConfig  `toml:"health"`
	API     *APIConfig     `toml:"api"`
	Display *DisplayConfig `toml:"display"`
	Storage *StorageConfig `toml:"storage"`
}

func mergeFromRaw(cfg *Config, tf *tomlFile, raw map[string]any) {
	if tf.Scanner != nil {
		if section, ok := rawSection(raw, "scanner"); ok {
			if _, exists := section["interval_seconds"]; exists {
				cfg.Scanner.IntervalSeconds = tf.Scanner.IntervalSeconds
			}
			if _, exists := section["script_interval_seconds"]; exists {
				cfg.Scanner.ScriptIntervalSeconds = tf.Scanner.ScriptIntervalSeconds
			}
			if _, exists := section["ports"]; exists {
				cfg.Scanner.Ports = tf.Scanner.Ports
			}
			if _, exists := section["ranges"]; exists {
				cfg.Scanner.Ranges = tf.Scanner.Ranges
			}
			if _, exists := section["scan_all"]; exists {
				cfg.Scanner.ScanAll = tf.Scanner.ScanAll
			}
		}
	}
	if tf.Health != nil {
		if section, ok := rawSection(raw, "health"); ok {
			if _, exists := section["interval_seconds"]; exists {
				cfg.Health.IntervalSeconds = tf.Health.IntervalSeconds
			}
		}
	}
	if tf.API != nil {
		if section, ok := rawSection(raw, "api"); ok {
			if _, exists := section["addr"]; exists {
				cfg.API.Addr = tf.API.Addr
			}
		}
	}
	if tf.Display != nil {
		if section, ok := rawSection(raw, "display"); ok {
			if _, exists := section["refresh_rate_ms"]; exists {
				cfg.Display.RefreshRateMS = tf.Display.RefreshRateMS
			}
		}
	}
	if tf.Storage != nil {
		if section, ok := rawSection(raw, "storage"); ok {
			if _, exists := section["db_path"]; exists {
				cfg.Storage.DBPath = tf.Storage.DBPath
			}
			if _, exists := section["retention_days"]; exists {
				cfg.Storage.RetentionDays = tf.Storage.RetentionDays
			}
		}
	}
}

func rawSection(raw map[string]any, key string) (map[string]any, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Scanner.IntervalSeconds < 1 {
		errs = append(errs, fmt.Sprintf("scanner interval_seconds must be positive, got %d", cfg.Scanner.IntervalSeconds))
	}
	if cfg.Scanner.ScriptIntervalSeconds < 1 {
		errs = append(errs, fmt.Sprintf("scanner script_interval_seconds must be positive, got %d", cfg.Scanner.ScriptIntervalSeconds))
	}
	for _, p := range cfg.Scanner.Ports {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Sprintf("scanner port must be 1-65535, got %d", p))
		}
	}
	for _, r := range cfg.Scanner.Ranges {
		if r[0] < 1 || r[1] > 65535 || r[0] > r[1] {
			errs = append(errs, fmt.Sprintf("scanner range must be an ascending pair within 1-65535, got [%d, %d]", r[0], r[1]))
		}
	}
	if cfg.Health.IntervalSeconds < 1 {
		errs = append(errs, fmt.Sprintf("health interval_seconds must be positive, got %d", cfg.Health.IntervalSeconds))
	}
	if cfg.Display.RefreshRateMS < 1 {
		errs = append(errs, fmt.Sprintf("display refresh_rate_ms must be positive, got %d", cfg.Display.RefreshRateMS))
	}
	if cfg.Storage.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("storage retention_days must be positive, got %d", cfg.Storage.RetentionDays))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation error: %s", strings.Join(errs, "; "))
	}
	return nil
}
