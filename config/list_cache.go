package config

import (
	"fmt"
	"time"
)

type ListCache struct {
	TTL              time.Duration `yaml:"ttl"`
	CleanupThreshold int           `yaml:"cleanup_threshold"`
}

func (c *ListCache) Preprocess() error {
	if c.TTL <= 0 {
		return fmt.Errorf("invalid list cache ttl: %s", c.TTL)
	}
	return nil
}
