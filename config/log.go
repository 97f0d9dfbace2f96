package config

import (
	"fmt"
	"strings"
)

type Log struct {
	Level string `yaml:"level"`
	Mode  string `yaml:"mode"`
}

func (c *Log) Preprocess() error {
	switch strings.ToLower(c.Mode) {
	case "dev", "prod":
		return nil
	default:
		return fmt.Errorf("invalid log mode '%s' (must be one of: dev, prod)",
			c.Mode,
		)
	}
}
