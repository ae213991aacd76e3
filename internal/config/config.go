package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Components ComponentsConfig `toml:"components"`
	Simulation SimulationConfig `toml:"simulation"`
	Logging    LoggingConfig    `toml:"logging"`
	Profile    ProfileConfig    `toml:"profile"`
}

type ComponentsConfig struct {
	Catalog        string `toml:"catalog"`          // yaml type catalog
	WeakRefBuckets int    `toml:"weak_ref_buckets"` // sweep period in ticks
	// Pools overrides per-type capacity by name: -1 keeps the catalog
	// default, 0 creates no pool.
	Pools map[string]int `toml:"pools"`
}

type SimulationConfig struct {
	Ticks     int           `toml:"ticks"`
	TickRate  time.Duration `toml:"tick_rate"` // 0 runs flat out
	Seed      int64         `toml:"seed"`
	Owners    int           `toml:"owners"` // entity capacity hint
	ScriptDir string        `toml:"script_dir"`
	Verify    bool          `toml:"verify"` // check pool invariants every tick
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type ProfileConfig struct {
	Mode string `toml:"mode"` // "", "cpu" or "mem"
	Dir  string `toml:"dir"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config { return defaults() }

func (c *Config) validate() error {
	if c.Components.WeakRefBuckets <= 0 {
		return fmt.Errorf("components.weak_ref_buckets must be positive, got %d", c.Components.WeakRefBuckets)
	}
	for name, n := range c.Components.Pools {
		if n < -1 {
			return fmt.Errorf("components.pools.%s: capacity %d (use -1 for the default, 0 for none)", name, n)
		}
	}
	if c.Simulation.Ticks < 0 {
		return fmt.Errorf("simulation.ticks must not be negative, got %d", c.Simulation.Ticks)
	}
	switch c.Profile.Mode {
	case "", "cpu", "mem":
	default:
		return fmt.Errorf("profile.mode %q: want cpu, mem or empty", c.Profile.Mode)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Components: ComponentsConfig{
			Catalog:        "data/catalog.yaml",
			WeakRefBuckets: 256,
			Pools:          map[string]int{},
		},
		Simulation: SimulationConfig{
			Ticks:     1000,
			Seed:      1,
			Owners:    256,
			ScriptDir: "scripts",
			Verify:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Profile: ProfileConfig{
			Dir: ".",
		},
	}
}
