package config

import (
	"fmt"
	"time"
)

type Vote struct {
	DefaultCooldown  time.Duration `yaml:"default_cooldown"`
	BroadcastTimeout time.Duration `yaml:"broadcast_timeout"`
}

func (c *Vote) Preprocess() error {
	if c.DefaultCooldown <= 0 {
		return fmt.Errorf("invalid default vote cooldown: %s", c.DefaultCooldown)
	}
	return nil
}
