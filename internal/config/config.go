// Package config loads the harness configuration once at startup into a
// single typed struct. Durations are real time.Duration fields; nothing
// downstream re-parses environment strings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete, immutable run configuration.
type Config struct {
	Target    TargetConfig   `mapstructure:"target"`
	Client    ClientConfig   `mapstructure:"client"`
	Run       RunConfig      `mapstructure:"run"`
	Scenarios map[string]int `mapstructure:"scenarios"`
	Status    StatusConfig   `mapstructure:"status"`
	Logging   LoggingConfig  `mapstructure:"logging"`
}

// TargetConfig locates the benchmark target.
type TargetConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Module string `mapstructure:"module"`
	Token  string `mapstructure:"token"`
	TLS    bool   `mapstructure:"tls"`
}

// BaseURL returns the http(s) origin for request/response calls.
func (t TargetConfig) BaseURL() string {
	scheme := "http"
	if t.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, t.Host, t.Port)
}

// WSURL returns the websocket endpoint for the persistent channel.
func (t TargetConfig) WSURL() string {
	scheme := "ws"
	if t.TLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/v1/database/%s/subscribe", scheme, t.Host, t.Port, t.Module)
}

// ClientConfig carries protocol client and pool tuning.
type ClientConfig struct {
	PoolSize          int           `mapstructure:"pool_size"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	SubscribeWait     time.Duration `mapstructure:"subscribe_wait"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

// RunConfig selects and paces the run.
type RunConfig struct {
	Profile string `mapstructure:"profile"`
	// ThinkTime is the pause between iterations of one virtual user.
	ThinkTime time.Duration `mapstructure:"think_time"`
	// IterationRate caps iterations/sec per virtual user; 0 is unpaced.
	IterationRate float64 `mapstructure:"iteration_rate"`
	// Seed fixes the data generator stream; 0 seeds randomly.
	Seed uint64 `mapstructure:"seed"`
}

// StatusConfig controls the live status/metrics endpoint.
type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig mirrors the usual level/format pair.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file path plus
// STDB_LOADGEN_* environment overrides, falling back to defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("loadgen")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("STDB_LOADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target.host", "localhost")
	v.SetDefault("target.port", 3000)
	v.SetDefault("target.module", "benchmark")
	v.SetDefault("target.token", "")
	v.SetDefault("target.tls", false)

	v.SetDefault("client.pool_size", 10)
	v.SetDefault("client.connect_timeout", "10s")
	v.SetDefault("client.request_timeout", "10s")
	v.SetDefault("client.subscribe_wait", "500ms")
	v.SetDefault("client.heartbeat_interval", "15s")
	v.SetDefault("client.retry_delay", "100ms")
	v.SetDefault("client.max_retries", 3)

	v.SetDefault("run.profile", "smoke")
	v.SetDefault("run.think_time", "0s")
	v.SetDefault("run.iteration_rate", 0.0)
	v.SetDefault("run.seed", 0)

	v.SetDefault("scenarios.counter_increment", 30)
	v.SetDefault("scenarios.message_insert", 25)
	v.SetDefault("scenarios.event_append", 15)
	v.SetDefault("scenarios.reducer_ws", 15)
	v.SetDefault("scenarios.subscribe_stream", 5)
	v.SetDefault("scenarios.batch_insert", 10)

	v.SetDefault("status.enabled", false)
	v.SetDefault("status.addr", ":8089")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate rejects configurations that cannot produce a usable run.
func (c *Config) Validate() error {
	if c.Target.Host == "" {
		return fmt.Errorf("target host is required")
	}
	if c.Target.Port <= 0 || c.Target.Port > 65535 {
		return fmt.Errorf("invalid target port: %d", c.Target.Port)
	}
	if c.Target.Module == "" {
		return fmt.Errorf("target module is required")
	}
	if c.Client.PoolSize < 1 {
		return fmt.Errorf("pool size must be >= 1, got %d", c.Client.PoolSize)
	}
	if c.Client.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", c.Client.MaxRetries)
	}
	total := 0
	for name, weight := range c.Scenarios {
		if weight < 0 {
			return fmt.Errorf("scenario %q has negative weight %d", name, weight)
		}
		total += weight
	}
	if total == 0 {
		return fmt.Errorf("at least one scenario needs a positive weight")
	}
	return nil
}
