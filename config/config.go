// Package config loads the caching subsystem configuration from a YAML
// file with environment variable overrides. Durations accept human
// strings like "90s" or "1h30m".
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as human
// strings ("5m", "1h30m") or bare integers (seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := str2duration.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the injected configuration for the cache service. Zero
// values are filled in by Load / ApplyDefaults, never read ambiently at
// use sites.
type Config struct {
	// Dir is the shared cache directory (durable backend files + locks).
	Dir string `yaml:"dir"`
	// Backend selects the durable backend: "auto", "sqlite" or "file".
	Backend string `yaml:"backend"`
	// DefaultTTL applies to namespaces without an explicit TTL.
	DefaultTTL Duration `yaml:"default_ttl"`
	// TTL maps namespace to freshness window.
	TTL map[string]Duration `yaml:"ttl"`
	// TaskTimeout bounds one background refresh; stale-lock detection
	// uses twice this value.
	TaskTimeout Duration `yaml:"task_timeout"`
	// MemorySoftMax / MemoryThreshold bound the in-process tier: once
	// the count exceeds the threshold, the oldest entries are evicted
	// back down to the soft max.
	MemorySoftMax   int `yaml:"memory_soft_max"`
	MemoryThreshold int `yaml:"memory_threshold"`
	// FileMaxRows caps records per namespace file (flat-file backend).
	FileMaxRows int `yaml:"file_max_rows"`
	// MaxEntryAge is the janitor's age cutoff for durable entries.
	MaxEntryAge Duration `yaml:"max_entry_age"`
	// CleanupInterval is the janitor trigger, in render cycles.
	CleanupInterval int `yaml:"cleanup_interval"`
	// StaleLockCutoff is the janitor's shared lock reclamation window.
	StaleLockCutoff Duration `yaml:"stale_lock_cutoff"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Dir:             defaultDir(),
		Backend:         "auto",
		DefaultTTL:      Duration(5 * time.Minute),
		TaskTimeout:     Duration(10 * time.Second),
		MemorySoftMax:   100,
		MemoryThreshold: 120,
		FileMaxRows:     500,
		MaxEntryAge:     Duration(24 * time.Hour),
		CleanupInterval: 30,
		StaleLockCutoff: Duration(10 * time.Minute),
	}
}

func defaultDir() string {
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "statusline")
	}
	return filepath.Join(os.TempDir(), "statusline-cache")
}

// TTLFor returns the freshness window for a namespace, falling back to
// DefaultTTL.
func (c Config) TTLFor(namespace string) time.Duration {
	if ttl, ok := c.TTL[namespace]; ok {
		return ttl.Std()
	}
	return c.DefaultTTL.Std()
}

// Load reads the YAML file at path (if it exists) over the defaults,
// then applies environment overrides. A missing file is not an error;
// the defaults plus environment stand alone.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(buf, &cfg); err != nil {
				return cfg, fmt.Errorf("config: failed to parse %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("STATUSLINE_CACHE_DIR"); v != "" {
		c.Dir = v
	}
	if v := os.Getenv("STATUSLINE_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("STATUSLINE_DEFAULT_TTL"); v != "" {
		if d, err := str2duration.ParseDuration(v); err == nil {
			c.DefaultTTL = Duration(d)
		}
	}
	if v := os.Getenv("STATUSLINE_TASK_TIMEOUT"); v != "" {
		if d, err := str2duration.ParseDuration(v); err == nil {
			c.TaskTimeout = Duration(d)
		}
	}
	if v := os.Getenv("STATUSLINE_CLEANUP_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.CleanupInterval = n
		}
	}
}

// ApplyDefaults fills any zero field with its default so a partially
// populated Config (hand-built in tests, sparse YAML) is usable.
func (c *Config) ApplyDefaults() {
	def := Default()
	if c.Dir == "" {
		c.Dir = def.Dir
	}
	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = def.DefaultTTL
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = def.TaskTimeout
	}
	if c.MemorySoftMax <= 0 {
		c.MemorySoftMax = def.MemorySoftMax
	}
	if c.MemoryThreshold <= 0 {
		c.MemoryThreshold = def.MemoryThreshold
	}
	if c.FileMaxRows <= 0 {
		c.FileMaxRows = def.FileMaxRows
	}
	if c.MaxEntryAge <= 0 {
		c.MaxEntryAge = def.MaxEntryAge
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	if c.StaleLockCutoff <= 0 {
		c.StaleLockCutoff = def.StaleLockCutoff
	}
}

// Validate rejects configurations the cache cannot honor.
func (c Config) Validate() error {
	switch c.Backend {
	case "auto", "sqlite", "file":
	default:
		return fmt.Errorf("config: unknown backend %q (want auto, sqlite or file)", c.Backend)
	}
	if c.MemoryThreshold < c.MemorySoftMax {
		return fmt.Errorf("config: memory_threshold (%d) must be >= memory_soft_max (%d)", c.MemoryThreshold, c.MemorySoftMax)
	}
	return nil
}
