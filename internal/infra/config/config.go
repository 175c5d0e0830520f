package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Backend   BackendSettings   `mapstructure:"backend"`
	Guard     GuardSettings     `mapstructure:"guard"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// BackendSettings locates the donation backend endpoints consumed by the guard.
type BackendSettings struct {
	BaseURL         string        `mapstructure:"base_url"`
	PermissionsPath string        `mapstructure:"permissions_path"`
	LogoutPath      string        `mapstructure:"logout_path"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Token           string        `mapstructure:"token"`
}

// GuardSettings tunes polling, confirmation and termination behaviour.
type GuardSettings struct {
	SessionID        string        `mapstructure:"session_id"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	ConfirmDelay     time.Duration `mapstructure:"confirm_delay"`
	StoreRetryDelay  time.Duration `mapstructure:"store_retry_delay"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	Countdown        time.Duration `mapstructure:"countdown"`
	LoginPath        string        `mapstructure:"login_path"`
	ReasonTTL        time.Duration `mapstructure:"reason_ttl"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	DB           int    `mapstructure:"db"`
	Password     string `mapstructure:"password"`
	TLSEnabled   bool   `mapstructure:"tls_enabled"`
	ReasonPrefix string `mapstructure:"reason_prefix"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("GUARD")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"backend.base_url",
		"backend.permissions_path",
		"backend.logout_path",
		"backend.timeout",
		"backend.token",
		"guard.session_id",
		"guard.poll_interval",
		"guard.confirm_delay",
		"guard.store_retry_delay",
		"guard.failure_threshold",
		"guard.cache_ttl",
		"guard.countdown",
		"guard.login_path",
		"guard.reason_ttl",
		"redis.enabled",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.reason_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Backend.BaseURL) == "" {
		return nil, fmt.Errorf("backend.base_url is required")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "session-guard")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "127.0.0.1")
	v.SetDefault("app.port", 8085)

	v.SetDefault("backend.base_url", "http://localhost:8080")
	v.SetDefault("backend.permissions_path", "/permissions")
	v.SetDefault("backend.logout_path", "/logout")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.token", "")

	v.SetDefault("guard.session_id", "")
	v.SetDefault("guard.poll_interval", "30s")
	v.SetDefault("guard.confirm_delay", "2s")
	v.SetDefault("guard.store_retry_delay", "2s")
	v.SetDefault("guard.failure_threshold", 3)
	v.SetDefault("guard.cache_ttl", "5m")
	v.SetDefault("guard.countdown", "3s")
	v.SetDefault("guard.login_path", "/login")
	v.SetDefault("guard.reason_ttl", "5m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.reason_prefix", "guard:logout_reason")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "guard")
	v.SetDefault("kafka.async", true)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "session-guard")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "GUARD_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
