package config

import (
	"fmt"
	"net"
)

type Server struct {
	ListenAddress string `yaml:"listen_address"`
}

func (c *Server) Preprocess() error {
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return fmt.Errorf("invalid server listen address '%s': %w",
			c.ListenAddress, err,
		)
	}
	return nil
}
