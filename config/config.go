// Package config defines the configuration of tinywire buses and how it is read from disk.
package config

import (
	"fmt"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/tinywire/logging"
)

// Config is the top level configuration file.
type Config struct {
	Buses    []BusConfig `json:"buses"`
	LogLevel string      `json:"log_level,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if c.LogLevel != "" {
		if _, err := logging.LevelFromString(c.LogLevel); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	seen := map[string]struct{}{}
	for idx := range c.Buses {
		busPath := joinPath(path, fmt.Sprintf("buses.%d", idx))
		if err := c.Buses[idx].Validate(busPath); err != nil {
			return err
		}
		name := c.Buses[idx].Name
		if _, ok := seen[name]; ok {
			return utils.NewConfigValidationError(busPath, errors.Errorf("duplicate bus name %q", name))
		}
		seen[name] = struct{}{}
	}
	return nil
}

// BusByName returns the bus with the given name. An empty name selects the only configured
// bus.
func (c *Config) BusByName(name string) (*BusConfig, error) {
	if name == "" {
		if len(c.Buses) != 1 {
			return nil, errors.Errorf("%d buses configured, a bus name is required", len(c.Buses))
		}
		return &c.Buses[0], nil
	}
	for idx := range c.Buses {
		if c.Buses[idx].Name == name {
			return &c.Buses[idx], nil
		}
	}
	return nil, errors.Errorf("no bus named %q", name)
}

func joinPath(path, elem string) string {
	if path == "" {
		return elem
	}
	return path + "." + elem
}
