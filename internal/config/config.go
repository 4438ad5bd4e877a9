package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Health    HealthConfig    `mapstructure:"health"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Workflows WorkflowsConfig `mapstructure:"workflows"`
	Agents    []AgentConfig   `mapstructure:"agents"`
}

type AppConfig struct {
	Port      string `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

type HealthConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
}

type DispatchConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type EngineConfig struct {
	DefaultStepTimeout time.Duration `mapstructure:"default_step_timeout"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	Retention          time.Duration `mapstructure:"retention"`
	CleanupSchedule    string        `mapstructure:"cleanup_schedule"`
	WaitPollInterval   time.Duration `mapstructure:"wait_poll_interval"`
	SaveAttempts       int           `mapstructure:"save_attempts"`
	SaveRetryDelay     time.Duration `mapstructure:"save_retry_delay"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ExecutionTTL time.Duration `mapstructure:"execution_ttl"`
}

type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
}

type WorkflowsConfig struct {
	Dir string `mapstructure:"dir"`
}

// AgentConfig entrada do catálogo estático de agentes
type AgentConfig struct {
	ID           string             `mapstructure:"id"`
	Name         string             `mapstructure:"name"`
	BaseURL      string             `mapstructure:"base_url"`
	Capabilities []CapabilityConfig `mapstructure:"capabilities"`
}

// CapabilityConfig Schema é texto JSON: o viper normaliza chaves de mapas
// para minúsculas, o que quebraria keywords como minLength.
type CapabilityConfig struct {
	Action      string `mapstructure:"action"`
	Description string `mapstructure:"description"`
	Schema      string `mapstructure:"schema"`
}

var envKeys = []string{
	"app.port", "app.log_level", "app.log_format",
	"health.interval", "health.timeout", "health.failure_threshold",
	"dispatch.request_timeout", "dispatch.rate_limit", "dispatch.rate_burst",
	"dispatch.breaker.enabled", "dispatch.breaker.max_failures", "dispatch.breaker.open_timeout",
	"engine.default_step_timeout", "engine.retry_delay", "engine.retention", "engine.cleanup_schedule",
	"engine.wait_poll_interval", "engine.save_attempts", "engine.save_retry_delay",
	"redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.pool_size", "redis.execution_ttl",
	"nats.enabled", "nats.url", "nats.max_reconnects", "nats.reconnect_wait",
	"tracing.enabled", "tracing.exporter",
	"workflows.dir",
}

// Load lê defaults, arquivo opcional (agentnet.yaml ou path explícito) e env AGENTNET_*
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("app.port", "8080")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("health.interval", 30*time.Second)
	v.SetDefault("health.timeout", 5*time.Second)
	v.SetDefault("health.failure_threshold", 3)

	v.SetDefault("dispatch.request_timeout", 30*time.Second)
	v.SetDefault("dispatch.rate_limit", 0)
	v.SetDefault("dispatch.rate_burst", 1)
	v.SetDefault("dispatch.breaker.enabled", false)
	v.SetDefault("dispatch.breaker.max_failures", 5)
	v.SetDefault("dispatch.breaker.open_timeout", 30*time.Second)

	v.SetDefault("engine.default_step_timeout", 30*time.Second)
	v.SetDefault("engine.retry_delay", time.Second)
	v.SetDefault("engine.retention", 24*time.Hour)
	v.SetDefault("engine.cleanup_schedule", "@every 1h")
	v.SetDefault("engine.wait_poll_interval", time.Second)
	v.SetDefault("engine.save_attempts", 5)
	v.SetDefault("engine.save_retry_delay", 100*time.Millisecond)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.execution_ttl", 24*time.Hour)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")

	v.SetDefault("workflows.dir", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("agentnet")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("AGENTNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checa o que não dá para corrigir com default
func (c *Config) Validate() error {
	if c.Health.FailureThreshold < 1 {
		return fmt.Errorf("health.failure_threshold must be >= 1")
	}
	if c.Dispatch.RateLimit < 0 {
		return fmt.Errorf("dispatch.rate_limit must be >= 0")
	}
	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d]: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("agents[%d]: duplicate id %s", i, a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}
