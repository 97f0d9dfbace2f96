package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log    Log    `yaml:"log"`
	Server Server `yaml:"server"`

	Storage Storage `yaml:"storage"`

	Status    Status    `yaml:"status"`
	Sync      Sync      `yaml:"sync"`
	ListCache ListCache `yaml:"list_cache"`
	Vote      Vote      `yaml:"vote"`
	Notify    Notify    `yaml:"notify"`
}

// LoadFile overlays the values found in the yaml file at path on top of cfg.
// Keys absent from the file keep whatever cfg already holds.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("failed to parse config file '%s': %w",
			path, err,
		)
	}
	return nil
}

func (c *Config) Preprocess() error {
	err := flatten(
		inSection("log", c.Log.Preprocess()),
		inSection("server", c.Server.Preprocess()),
		inSection("storage", c.Storage.Preprocess()),
		inSection("status", c.Status.Preprocess()),
		inSection("sync", c.Sync.Preprocess()),
		inSection("list_cache", c.ListCache.Preprocess()),
		inSection("vote", c.Vote.Preprocess()),
		inSection("notify", c.Notify.Preprocess()),
	)
	if err != nil {
		return fmt.Errorf("%w: %w",
			ErrInvalidConfig, err,
		)
	}
	return nil
}
