package config

import (
	"errors"
	"fmt"
)

const (
	NotifyBackendNone  = "none"
	NotifyBackendLog   = "log"
	NotifyBackendRedis = "redis"
)

type Notify struct {
	Backend string `yaml:"backend"`

	RedisAddress  string `yaml:"redis_address"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisChannel  string `yaml:"redis_channel"`
}

func (c *Notify) Preprocess() error {
	switch c.Backend {
	case NotifyBackendNone, NotifyBackendLog:
		return nil
	case NotifyBackendRedis:
		errs := make([]error, 0)
		if c.RedisAddress == "" {
			errs = append(errs, errors.New("redis notifier requires an address"))
		}
		if c.RedisChannel == "" {
			errs = append(errs, errors.New("redis notifier requires a channel"))
		}
		return flatten(errs...)
	default:
		return fmt.Errorf("unknown notify backend '%s' (must be one of: %s, %s, %s)",
			c.Backend, NotifyBackendNone, NotifyBackendLog, NotifyBackendRedis,
		)
	}
}
