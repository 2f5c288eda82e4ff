// Package config handles shapegraph.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/shapegraph/ic"
	"github.com/chazu/shapegraph/shape"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "shapegraph.toml"

// Config represents a shapegraph.toml file.
type Config struct {
	Shape ShapeConfig `toml:"shape"`
	Cache CacheConfig `toml:"cache"`
	Log   LogConfig   `toml:"log"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-"`
}

// ShapeConfig tunes the shape arena.
type ShapeConfig struct {
	MaxTransitions      int  `toml:"max-transitions"`
	MaxTransitionLength int  `toml:"max-transition-length"`
	InitialCapacity     int  `toml:"initial-capacity"`
	GrowthFactor        int  `toml:"growth-factor"`
	Concurrent          bool `toml:"concurrent"`
}

// CacheConfig tunes inline caches.
type CacheConfig struct {
	PolymorphicBound     int  `toml:"polymorphic-bound"`
	MaxChainDepth        int  `toml:"max-chain-depth"`
	SkipFirstObservation bool `toml:"skip-first-observation"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	sp := shape.DefaultPolicy()
	cp := ic.DefaultPolicy()
	return &Config{
		Shape: ShapeConfig{
			MaxTransitions:      sp.MaxTransitions,
			MaxTransitionLength: sp.MaxTransitionLength,
			InitialCapacity:     sp.InitialCapacity,
			GrowthFactor:        sp.GrowthFactor,
		},
		Cache: CacheConfig{
			PolymorphicBound: cp.PolymorphicBound,
			MaxChainDepth:    cp.MaxChainDepth,
		},
	}
}

// Load parses shapegraph.toml from dir. Keys missing from the file keep
// their default values.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the configuration at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a shapegraph.toml file, then
// loads and returns it. Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

func (c *Config) validate() error {
	switch {
	case c.Shape.MaxTransitions < 1:
		return fmt.Errorf("shape.max-transitions must be at least 1, got %d", c.Shape.MaxTransitions)
	case c.Shape.MaxTransitionLength < 1:
		return fmt.Errorf("shape.max-transition-length must be at least 1, got %d", c.Shape.MaxTransitionLength)
	case c.Shape.InitialCapacity < 1:
		return fmt.Errorf("shape.initial-capacity must be at least 1, got %d", c.Shape.InitialCapacity)
	case c.Shape.GrowthFactor < 2:
		return fmt.Errorf("shape.growth-factor must be at least 2, got %d", c.Shape.GrowthFactor)
	case c.Cache.PolymorphicBound < 1:
		return fmt.Errorf("cache.polymorphic-bound must be at least 1, got %d", c.Cache.PolymorphicBound)
	case c.Cache.MaxChainDepth < 1:
		return fmt.Errorf("cache.max-chain-depth must be at least 1, got %d", c.Cache.MaxChainDepth)
	}
	return nil
}

// ShapePolicy converts the [shape] section.
func (c *Config) ShapePolicy() shape.Policy {
	return shape.Policy{
		MaxTransitions:      c.Shape.MaxTransitions,
		MaxTransitionLength: c.Shape.MaxTransitionLength,
		InitialCapacity:     c.Shape.InitialCapacity,
		GrowthFactor:        c.Shape.GrowthFactor,
		Concurrent:          c.Shape.Concurrent,
	}
}

// CachePolicy converts the [cache] section.
func (c *Config) CachePolicy() ic.Policy {
	return ic.Policy{
		PolymorphicBound:     c.Cache.PolymorphicBound,
		MaxChainDepth:        c.Cache.MaxChainDepth,
		SkipFirstObservation: c.Cache.SkipFirstObservation,
	}
}

// LogPath returns the log file path for commonlog.Configure, or nil to log
// to stderr.
func (c *Config) LogPath() *string {
	if c.Log.File == "" {
		return nil
	}
	p := c.Log.File
	if !filepath.IsAbs(p) && c.Path != "" {
		p = filepath.Join(filepath.Dir(c.Path), p)
	}
	return &p
}
