package local

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// ConfigFile reads and writes the game-server configuration as one JSON
// document. Parsing stays at the map level; the panel does not interpret
// individual settings.
type ConfigFile struct {
	mu   sync.Mutex
	path string
}

// NewConfigFile wraps the configuration file at path.
func NewConfigFile(path string) *ConfigFile {
	return &ConfigFile{path: path}
}

// Read returns the configuration document. A missing file reads as empty.
func (c *ConfigFile) Read() (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg map[string]any
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Write replaces the configuration document atomically.
func (c *ConfigFile) Write(cfg map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
