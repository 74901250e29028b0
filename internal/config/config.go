package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/Swind/go-task-scheduler/core"
)

// Config is the top-level schedbench configuration.
type Config struct {
	Pool    PoolConfig    `yaml:"pool"`
	Load    LoadConfig    `yaml:"load"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	ID              string        `yaml:"id"`
	Workers         int           `yaml:"workers"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoadConfig describes the synthetic producers.
type LoadConfig struct {
	Producers        int           `yaml:"producers"`
	TasksPerProducer int           `yaml:"tasks_per_producer"`
	TaskDuration     time.Duration `yaml:"task_duration"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// Load reads and parses a YAML config file on top of DefaultConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pool cannot run with.
func (c *Config) Validate() error {
	if c.Pool.Workers <= 0 {
		return errors.Newf("pool.workers must be positive, got %d", c.Pool.Workers)
	}
	if c.Load.Producers < 0 || c.Load.TasksPerProducer < 0 {
		return errors.New("load.producers and load.tasks_per_producer must not be negative")
	}
	if c.Pool.ShutdownTimeout <= 0 {
		return errors.Newf("pool.shutdown_timeout must be positive, got %s", c.Pool.ShutdownTimeout)
	}
	return nil
}

// Logger builds the core logger for Logging.Level; "off" disables logging.
func (c *Config) Logger() core.Logger {
	if c.Logging.Level == "off" {
		return core.NewNoOpLogger()
	}
	return &core.DefaultLogger{MinLevel: c.Logging.Level}
}

// DefaultConfig returns sensible defaults for local runs.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			ID:              "schedbench",
			Workers:         4,
			ShutdownTimeout: 10 * time.Second,
		},
		Load: LoadConfig{
			Producers:        8,
			TasksPerProducer: 1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Addr:      "127.0.0.1:9090",
			Namespace: "taskscheduler",
		},
	}
}
