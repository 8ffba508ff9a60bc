package database

import (
	"fmt"
	"time"
)

// Config represents database connection configuration. Connections are made
// at the server level; individual schemas are addressed per operation.
type Config struct {
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     int           `mapstructure:"port" yaml:"port"`
	Username string        `mapstructure:"username" yaml:"username"`
	Password string        `mapstructure:"password" yaml:"password"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DSN returns the Data Source Name for a server-level MySQL connection
func (c *Config) DSN() string {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/?parseTime=true&timeout=%s",
		c.Username, c.Password, c.Host, c.Port, timeout)
}

// Validate checks that the connection parameters are usable
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Username == "" {
		return fmt.Errorf("database username is required")
	}
	return nil
}
