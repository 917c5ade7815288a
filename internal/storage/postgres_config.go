package storage

import (
	"fmt"
	"time"
)

// PostgresConfig carries pool tuning for the Postgres driver. DSN is the
// only required field; zero values for the rest fall back to defaults.
type PostgresConfig struct {
	DSN             string
	MinConns        int32
	MaxConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ApplicationName string
}

func defaultPostgresConfig(dsn string) PostgresConfig {
	return PostgresConfig{
		DSN:             dsn,
		MinConns:        1,
		MaxConns:        8,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ApplicationName: "canaldir",
	}
}

func (c PostgresConfig) validate() error {
	if c.DSN == "" {
		return fmt.Errorf("postgres dsn is required")
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("postgres max conns must be at least 1, got %d", c.MaxConns)
	}
	if c.MinConns < 0 || c.MinConns > c.MaxConns {
		return fmt.Errorf("postgres min conns %d out of range for max %d", c.MinConns, c.MaxConns)
	}
	return nil
}
