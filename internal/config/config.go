package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leshachaplin/appsight/internal/storage/event/clickhouse"
	"github.com/leshachaplin/appsight/internal/worker"
	"github.com/leshachaplin/appsight/internal/worker/redpanda/consumer"
	"github.com/leshachaplin/appsight/internal/worker/redpanda/producer"
)

const (
	QueueMemory   = "memory"
	QueueRedpanda = "redpanda"

	// IngestKeysEnv holds a comma separated list that replaces ingest_keys.
	IngestKeysEnv = "APPSIGHT_INGEST_KEYS"

	defaultAddr = ":8080"
)

var ErrInvalid = errors.New("invalid collector config")

// Config is the main config for the application
type Config struct {
	LogLevel      string            `yaml:"log_level"`
	Addr          string            `yaml:"addr"`
	IngestKeys    []string          `yaml:"ingest_keys"`
	Queue         string            `yaml:"queue"`
	Clickhouse    clickhouse.Config `yaml:"clickhouse"`
	EventWorker   worker.Config     `yaml:"event_worker"`
	EventProducer producer.Config   `yaml:"event_producer"`
	EventConsumer consumer.Config   `yaml:"event_consumer"`
}

// Load reads a YAML file, applies the environment override and defaults.
// An empty path yields the defaults alone.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if keys, ok := os.LookupEnv(IngestKeysEnv); ok {
		cfg.IngestKeys = splitKeys(keys)
	}

	cfg = cfg.withDefaults()
	return cfg, cfg.Validate()
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.Queue == "" {
		c.Queue = QueueMemory
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	return c
}

func (c Config) Validate() error {
	switch c.Queue {
	case QueueMemory:
	case QueueRedpanda:
		if len(c.EventProducer.Brokers) == 0 || len(c.EventConsumer.Brokers) == 0 {
			return fmt.Errorf("%w: redpanda queue needs producer and consumer brokers", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown queue %q", ErrInvalid, c.Queue)
	}
	if c.Clickhouse.Addr == "" {
		return fmt.Errorf("%w: clickhouse addr is required", ErrInvalid)
	}
	return nil
}

func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
