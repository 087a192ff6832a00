package config

import (
	"fmt"
	"time"
)

// Config represents a woofstack.yaml configuration file. All values are
// optional and act as defaults for the lambda-api/s3-api command line
// flags; CLI flags always override config values.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Lambda   LambdaConfig   `yaml:"lambda"`
	Storage  StorageConfig  `yaml:"storage"`
	Notify   NotifyConfig   `yaml:"notify"`
	Log      LogConfig      `yaml:"log"`
}

// LambdaConfig holds function-service tunables.
type LambdaConfig struct {
	ListenAddr       string   `yaml:"listen_addr"`
	WorkerBin        string   `yaml:"worker_bin"`
	WorkerQueueDepth int      `yaml:"worker_queue_depth"`
	WorkerFibres     int      `yaml:"worker_fibres"`
	CallWoofElSize   int      `yaml:"call_woof_el_size"`
	ResultWoofCount  int      `yaml:"result_woof_count"`
	ResultWoofElSize int      `yaml:"result_woof_el_size"`
	InvokeTimeout    Duration `yaml:"invoke_timeout"`
	PollBackoff      PollBackoffConfig `yaml:"poll_backoff"`
}

// PollBackoffConfig holds waitForResult backoff settings read from the
// config file. No binary passes them on: the worker polls with its own
// DefaultPollInitial/DefaultPollMax, doubling each step.
type PollBackoffConfig struct {
	Initial Duration `yaml:"initial"`
	Max     Duration `yaml:"max"`
	Factor  float64  `yaml:"factor"`
}

// StorageConfig holds object-service tunables.
type StorageConfig struct {
	ListenAddr    string `yaml:"listen_addr"`
	ShardBytes    int    `yaml:"shard_bytes"`
	ShardsPerLog  int    `yaml:"shards_per_log"`
	ObjectPoolSize int   `yaml:"object_pool_size"`
}

// NotifyConfig selects and configures the notification dispatch adapter.
type NotifyConfig struct {
	Adapter string            `yaml:"adapter"` // "webhook" or "redis"
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
}

// LogConfig controls the zap logger's verbosity and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Defaults returns the tunable defaults used when no config file is
// supplied.
func Defaults() *Config {
	return &Config{
		DataDir: "./data",
		Lambda: LambdaConfig{
			ListenAddr:       ":9001",
			WorkerQueueDepth: 16,
			WorkerFibres:     4,
			CallWoofElSize:   16384,
			ResultWoofCount:  8,
			ResultWoofElSize: 16384,
			InvokeTimeout:    Duration{30 * time.Second},
			PollBackoff: PollBackoffConfig{
				Initial: Duration{4 * time.Millisecond},
				Max:     Duration{256 * time.Millisecond},
				Factor:  2.0,
			},
		},
		Storage: StorageConfig{
			ListenAddr:     ":9000",
			ShardBytes:     16384,
			ShardsPerLog:   1024,
			ObjectPoolSize: 32,
		},
		Notify: NotifyConfig{
			Adapter: "webhook",
			Timeout: Duration{30 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
