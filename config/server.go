package config

import "fmt"

// ServerConfig configures `chorus serve`
type ServerConfig struct {
	Listen         string `hcl:"listen,optional"`
	AccessPassword string `hcl:"access_password,optional"`
	RequestTimeout int    `hcl:"request_timeout,optional"` // seconds
}

// Defaults fills in default values for unset fields
func (s *ServerConfig) Defaults() {
	if s.Listen == "" {
		s.Listen = ":8080"
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = 300
	}
}

// Validate checks that required fields are set
func (s *ServerConfig) Validate() error {
	if s.AccessPassword == "" {
		return fmt.Errorf("access_password is required")
	}
	return nil
}
