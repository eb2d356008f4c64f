package squeue

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the recognized queue options. Zero values fall back to
// the defaults from DefaultConfig, so a partially filled config (or a
// partial YAML file) is always usable.
type Config struct {
	// URI is the MongoDB connection string.
	URI string `yaml:"uri"`

	// Database is the database holding the queue collection.
	Database string `yaml:"database"`

	// Collection is the name of the backing collection.
	Collection string `yaml:"collection"`

	// Release is the lease duration in seconds. A claimed item whose
	// lock is older than this is considered abandoned and eligible for
	// reclaim.
	Release int `yaml:"release"`

	// Retries is the failure budget. An item whose retry count reaches
	// this value is dead-lettered.
	Retries int `yaml:"retries"`

	// CompletedTTL is the retention window for completed items in
	// seconds, enforced by the store's TTL expiry on completed_at.
	CompletedTTL int `yaml:"completed_ttl"`

	// KeepAlive is the server heartbeat interval in milliseconds.
	KeepAlive int `yaml:"keep_alive"`

	// AutoReconnect enables the driver's retryable reads and writes.
	AutoReconnect bool `yaml:"auto_reconnect"`
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		URI:           "mongodb://localhost:27017",
		Database:      "squeue",
		Collection:    "queue",
		Release:       30,
		Retries:       5,
		CompletedTTL:  604800, // 7 days
		KeepAlive:     20000,
		AutoReconnect: true,
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Missing keys keep
// their defaults; unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("squeue: read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("squeue: parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that the config values are internally consistent.
func (c Config) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("squeue: config: collection must not be empty")
	}
	if c.Release < 0 {
		return fmt.Errorf("squeue: config: release must not be negative, got %d", c.Release)
	}
	if c.Retries < 1 {
		return fmt.Errorf("squeue: config: retries must be at least 1, got %d", c.Retries)
	}
	if c.CompletedTTL < 1 {
		return fmt.Errorf("squeue: config: completed_ttl must be at least 1 second, got %d", c.CompletedTTL)
	}
	return nil
}

// Lease returns the release window as a duration.
func (c Config) Lease() time.Duration {
	return time.Duration(c.Release) * time.Second
}

// TTL returns the completed-item retention window as a duration.
func (c Config) TTL() time.Duration {
	return time.Duration(c.CompletedTTL) * time.Second
}

// KeepAliveInterval returns the heartbeat interval as a duration.
func (c Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.KeepAlive) * time.Millisecond
}
