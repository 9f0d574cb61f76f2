// Package config loads flowgraph descriptions from YAML or HCL files.
//
// A file names the blocks to build, the connections between their ports and
// the engine and logging settings to run them with. Load decodes strictly,
// applies defaults and leaves validation to Validate.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sbl8/sigflow/runtime"
)

// Config holds a complete flowgraph description.
type Config struct {
	Log         LogConfig       `yaml:"log"`
	Engine      EngineConfig    `yaml:"engine"`
	Blocks      []BlockConfig   `yaml:"blocks"`
	Connections []ConnectConfig `yaml:"connections"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// EngineConfig maps onto runtime.EngineOptions.
type EngineConfig struct {
	BufferItems       int   `yaml:"buffer_items"`
	ForceDoubleMapped bool  `yaml:"force_double_mapped,omitempty"`
	EnableStats       *bool `yaml:"enable_stats,omitempty"`
}

// BlockConfig is one named block instance.
type BlockConfig struct {
	Name   string         `yaml:"name"`
	Kind   string         `yaml:"kind"`
	Params map[string]any `yaml:"params,omitempty"`
}

// ConnectConfig links an output port to an input port. Endpoints are written
// "name:port"; the port defaults to 0.
type ConnectConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Load reads a flowgraph file. The extension picks the decoder: .yaml and
// .yml for YAML, .hcl for HCL.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg *Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		cfg, err = decodeYAML(data)
	case ".hcl":
		cfg, err = decodeHCL(path, data)
	default:
		return nil, fmt.Errorf("unsupported config extension %q", ext)
	}
	if err != nil {
		return nil, err
	}

	cfg.setDefaults()
	return cfg, nil
}

func decodeYAML(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// setDefaults applies explicit default values to unset fields.
func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	def := runtime.DefaultEngineOptions()
	if c.Engine.BufferItems == 0 {
		c.Engine.BufferItems = def.BufferItems
	}
	if c.Engine.EnableStats == nil {
		on := def.EnableStats
		c.Engine.EnableStats = &on
	}
}

// EngineOptions returns the runtime options the config describes.
func (c *Config) EngineOptions() runtime.EngineOptions {
	opts := runtime.EngineOptions{
		BufferItems:       c.Engine.BufferItems,
		ForceDoubleMapped: c.Engine.ForceDoubleMapped,
	}
	if c.Engine.EnableStats != nil {
		opts.EnableStats = *c.Engine.EnableStats
	}
	return opts
}
