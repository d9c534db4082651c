package config

import "time"

// Default configuration values.
const (
	DefaultOutput       = "table"
	DefaultListen       = "127.0.0.1:8080"
	DefaultQueryTimeout = 30 * time.Second
)

// ApplyDefaults fills unset fields of c.
func ApplyDefaults(c *Config) {
	if c == nil {
		return
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
}
