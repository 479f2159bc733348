// Package config provides the configuration structure for dbpool.
//
// The configuration is organized into sections:
//   - Pool: driver, target DSN, credentials and capacity
//   - Logging: log level and encoding
//   - Workload: defaults for the CLI's query workload
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.Pool.Driver = "pgx"
//	cfg.Pool.DSN = "postgres://localhost:5432/app"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config is the top-level configuration.
type Config struct {
	// Pool describes the database and the pool in front of it
	Pool PoolConfig `yaml:"pool" json:"pool"`

	// Logging controls the structured logger
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Workload holds defaults for the exec command
	Workload WorkloadConfig `yaml:"workload" json:"workload"`
}

// PoolConfig contains the construction parameters of a connection pool.
type PoolConfig struct {
	// Name labels the pool in logs
	Name string `yaml:"name" json:"name"`
	// Driver is the database/sql driver name (mysql, pgx, snowflake, ...)
	Driver string `yaml:"driver" json:"driver"`
	// DSN is the target address in the driver's format
	DSN string `yaml:"dsn" json:"dsn"`
	// User overrides the user in the DSN when set
	User string `yaml:"user" json:"user"`
	// Password overrides the password in the DSN when set (use env vars)
	Password string `yaml:"password" json:"-"`
	// Capacity is the maximum number of concurrently leased connections
	Capacity int `yaml:"capacity" json:"capacity"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	// Level sets logging verbosity (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`
	// Encoding is json or console
	Encoding string `yaml:"encoding" json:"encoding"`
	// Development enables colored levels and stack traces on errors
	Development bool `yaml:"development" json:"development"`
}

// WorkloadConfig contains defaults for running a query workload.
type WorkloadConfig struct {
	Query      string        `yaml:"query" json:"query"`
	Workers    int           `yaml:"workers" json:"workers"`
	Iterations int           `yaml:"iterations" json:"iterations"`
	RatePerSec float64       `yaml:"rate_per_sec" json:"rate_per_sec"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// Default returns a Config with defaults suitable for local use.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			Name:     "default",
			Capacity: 10,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
		Workload: WorkloadConfig{
			Query:      "SELECT 1",
			Workers:    runtime.NumCPU(),
			Iterations: 100,
			Timeout:    5 * time.Minute,
		},
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	if c.Workload.Workers < 0 {
		return fmt.Errorf("workload.workers cannot be negative")
	}
	if c.Workload.Iterations < 0 {
		return fmt.Errorf("workload.iterations cannot be negative")
	}
	if c.Workload.RatePerSec < 0 {
		return fmt.Errorf("workload.rate_per_sec cannot be negative")
	}
	return nil
}

// Validate checks the pool's construction parameters.
func (p *PoolConfig) Validate() error {
	if p.Driver == "" {
		return fmt.Errorf("pool.driver is required")
	}
	if p.DSN == "" {
		return fmt.Errorf("pool.dsn is required")
	}
	if p.Capacity <= 0 {
		return fmt.Errorf("pool.capacity must be positive")
	}
	return nil
}
