package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/sbl8/sigflow/blocks"
)

// Validate checks the whole description and returns the first problem found.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	if len(c.Blocks) == 0 {
		return fmt.Errorf("no blocks defined")
	}

	kinds := blocks.Kinds()
	names := make(map[string]bool, len(c.Blocks))
	for i, b := range c.Blocks {
		if b.Name == "" {
			return fmt.Errorf("block %d: name is required", i)
		}
		if strings.Contains(b.Name, ":") {
			return fmt.Errorf("block %q: name must not contain ':'", b.Name)
		}
		if names[b.Name] {
			return fmt.Errorf("block %q defined twice", b.Name)
		}
		names[b.Name] = true
		if !slices.Contains(kinds, b.Kind) {
			return fmt.Errorf("block %q: unknown kind %q", b.Name, b.Kind)
		}
	}

	for i, conn := range c.Connections {
		for _, end := range []string{conn.From, conn.To} {
			name, _, err := ParseEndpoint(end)
			if err != nil {
				return fmt.Errorf("connection %d: %w", i, err)
			}
			if !names[name] {
				return fmt.Errorf("connection %d: unknown block %q", i, name)
			}
		}
	}
	return nil
}

// Validate checks logging settings.
func (l *LogConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be debug, info, warn or error, got %q", l.Level)
	}
	if l.Format != "text" && l.Format != "json" {
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}
	return nil
}

// Validate checks engine settings.
func (e *EngineConfig) Validate() error {
	if e.BufferItems < 1 {
		return fmt.Errorf("buffer_items must be positive, got %d", e.BufferItems)
	}
	return nil
}

// ParseEndpoint splits "name:port" into its parts. A bare name means port 0.
func ParseEndpoint(s string) (string, int, error) {
	name, portStr, found := strings.Cut(s, ":")
	if name == "" {
		return "", 0, fmt.Errorf("endpoint %q has no block name", s)
	}
	if !found {
		return name, 0, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 {
		return "", 0, fmt.Errorf("endpoint %q has an invalid port", s)
	}
	return name, port, nil
}
