package ingest

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultEnvironment   = "production"
	defaultBatchSize     = 50
	defaultFlushInterval = 10
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is fixed once the client is constructed.
type Config struct {
	APIURL      string `yaml:"api_url"`
	IngestKey   string `yaml:"ingest_key"`
	AppName     string `yaml:"app_name"`
	AppVersion  string `yaml:"app_version"`
	Environment string `yaml:"environment"`
	Debug       bool   `yaml:"debug"`
	// BatchSize counts items across all five buffers.
	BatchSize            int `yaml:"batch_size"`
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`
}

// LoadConfig reads a YAML config file. Defaults are applied by New.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.Environment == "" {
		c.Environment = defaultEnvironment
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FlushIntervalSeconds <= 0 {
		c.FlushIntervalSeconds = defaultFlushInterval
	}
	return c
}

func (c Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("%w: api url is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("%w: api url: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: api url scheme %q", ErrInvalidConfig, u.Scheme)
	}
	if c.IngestKey == "" {
		return fmt.Errorf("%w: ingest key is required", ErrInvalidConfig)
	}
	if c.AppName == "" {
		return fmt.Errorf("%w: app name is required", ErrInvalidConfig)
	}
	return nil
}

func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}
