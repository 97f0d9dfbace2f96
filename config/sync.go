package config

import (
	"fmt"
	"time"
)

type Sync struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Parallelism int           `yaml:"parallelism"`
}

func (c *Sync) Preprocess() error {
	if !c.Enabled {
		return nil
	}
	if c.Interval <= 0 {
		return fmt.Errorf("invalid sync interval: %s", c.Interval)
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 1
	}
	return nil
}
