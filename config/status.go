package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

type Status struct {
	BaseURL       string        `yaml:"base_url"`
	UserAgent     string        `yaml:"user_agent"`
	Timeout       time.Duration `yaml:"timeout"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

func (c *Status) Preprocess() error {
	errs := make([]error, 0)

	if c.BaseURL == "" {
		errs = append(errs, errors.New("status provider base url is required"))
	} else if _, err := url.Parse(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("invalid status provider base url: %w",
			err,
		))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid status poll timeout: %s", c.Timeout))
	}
	if c.TTL <= 0 {
		errs = append(errs, fmt.Errorf("invalid status cache ttl: %s", c.TTL))
	}

	return flatten(errs...)
}
