package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the DelegateWatch service.
type Config struct {
	Port      int
	Version   string
	Redis     RedisConfig
	Alert     AlertConfig
	Webhook   WebhookConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
}

type RedisConfig struct {
	// Address is host:port of the Redis server. Empty means "use the
	// in-memory store" (zero-config local runs and tests).
	Address  string
	Password string
	Database int
	PoolSize int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type AlertConfig struct {
	// LogPath is the append-only alert log file.
	LogPath string
	// ThrottleWindow is the minimum time between two alerts.
	ThrottleWindow time.Duration
	// MinSampleSize suppresses alerts until this many actions exist.
	MinSampleSize int64
}

type WebhookConfig struct {
	// URL of the operator channel webhook; empty disables dispatch.
	URL    string
	Secret string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type AuthConfig struct {
	// APIKey guards the API when set; empty disables auth.
	APIKey       string
	APIKeyHeader string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("DELEGATEWATCH_PORT", 8080),
		Version: envStr("DELEGATEWATCH_VERSION", "0.2.0"),
		Redis: RedisConfig{
			Address:      envStr("REDIS_ADDR", ""),
			Password:     envStr("REDIS_PASSWORD", ""),
			Database:     envInt("REDIS_DB", 0),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  envDur("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDur("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDur("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Alert: AlertConfig{
			LogPath:        envStr("DELEGATEWATCH_ALERT_LOG", "delegation-alerts.log"),
			ThrottleWindow: envDur("DELEGATEWATCH_ALERT_THROTTLE", time.Hour),
			MinSampleSize:  int64(envInt("DELEGATEWATCH_ALERT_MIN_SAMPLE", 10)),
		},
		Webhook: WebhookConfig{
			URL:    envStr("DELEGATEWATCH_WEBHOOK_URL", ""),
			Secret: envStr("DELEGATEWATCH_WEBHOOK_SECRET", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "delegatewatch"),
		},
		Auth: AuthConfig{
			APIKey:       envStr("DELEGATEWATCH_API_KEY", ""),
			APIKeyHeader: envStr("DELEGATEWATCH_API_KEY_HEADER", "X-Api-Key"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
