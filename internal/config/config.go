// Package config loads and validates app config from the environment and an optional .env file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Session backends.
const (
	SessionBackendFile  = "file"
	SessionBackendRedis = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// TelegramBotToken is the Bot API token. Required by cmd/bot.
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	// TelegramAPIID and TelegramAPIHash are the MTProto application credentials. Required by cmd/bot.
	TelegramAPIID   int    `mapstructure:"TELEGRAM_API_ID"`
	TelegramAPIHash string `mapstructure:"TELEGRAM_API_HASH"`

	// DatabaseURL is the Postgres DSN for bot user records.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// SessionBackend selects the session store: "file" or "redis".
	SessionBackend string `mapstructure:"SESSION_BACKEND"`
	// SessionFile is the JSON file used by the file backend.
	SessionFile string `mapstructure:"SESSION_FILE"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is optional.
	RedisPassword   string `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int    `mapstructure:"REDIS_DB"`
	SessionRedisKey string `mapstructure:"SESSION_REDIS_KEY"`
	// SessionEncryptionKey is an optional hex-encoded 32-byte key; tokens are sealed at rest when set.
	SessionEncryptionKey string `mapstructure:"SESSION_ENCRYPTION_KEY"`

	LoginCodeLength int `mapstructure:"LOGIN_CODE_LENGTH"`
	// LoginIdleTimeout is how long an in-progress login may wait for input (e.g. "10m").
	LoginIdleTimeout string `mapstructure:"LOGIN_IDLE_TIMEOUT"`
	// LoginSweepInterval is how often idle logins are checked (e.g. "30s").
	LoginSweepInterval string `mapstructure:"LOGIN_SWEEP_INTERVAL"`
	// ActivationTTLDays is the subscription period granted by share activation.
	ActivationTTLDays int    `mapstructure:"ACTIVATION_TTL_DAYS"`
	DefaultLanguage   string `mapstructure:"DEFAULT_LANGUAGE"`

	// HealthGRPCAddr is where the gRPC health service listens; empty disables it.
	HealthGRPCAddr string `mapstructure:"HEALTH_GRPC_ADDR"`

	OTLPEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTELServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// TelemetryKafkaBrokers is a comma-separated list of Kafka brokers; empty disables the event stream.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TelemetryKafkaTopic   string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group of cmd/worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the Loki base URL cmd/worker pushes to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// A missing .env is ignored and real env vars win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_API_ID", 0)
	v.SetDefault("TELEGRAM_API_HASH", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_BACKEND", SessionBackendFile)
	v.SetDefault("SESSION_FILE", "storage/sessions/session.json")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_REDIS_KEY", "userbot:sessions")
	v.SetDefault("SESSION_ENCRYPTION_KEY", "")
	v.SetDefault("LOGIN_CODE_LENGTH", 5)
	v.SetDefault("LOGIN_IDLE_TIMEOUT", "10m")
	v.SetDefault("LOGIN_SWEEP_INTERVAL", "30s")
	v.SetDefault("ACTIVATION_TTL_DAYS", 30)
	v.SetDefault("DEFAULT_LANGUAGE", "uz")
	v.SetDefault("HEALTH_GRPC_ADDR", ":8081")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "userbot-connect")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "userbot-login-events")
	v.SetDefault("KAFKA_GROUP_ID", "userbot-login-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.SessionBackend = strings.ToLower(strings.TrimSpace(c.SessionBackend))
	switch c.SessionBackend {
	case SessionBackendFile:
		if c.SessionFile == "" {
			return errors.New("config: SESSION_FILE must be set for the file session backend")
		}
	case SessionBackendRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR must be set for the redis session backend")
		}
	default:
		return fmt.Errorf("config: SESSION_BACKEND must be %q or %q, got %q", SessionBackendFile, SessionBackendRedis, c.SessionBackend)
	}
	if c.LoginCodeLength < 4 || c.LoginCodeLength > 8 {
		return errors.New("config: LOGIN_CODE_LENGTH must be between 4 and 8")
	}
	if c.ActivationTTLDays <= 0 {
		return errors.New("config: ACTIVATION_TTL_DAYS must be positive")
	}
	if _, err := c.SessionKey(); err != nil {
		return err
	}
	return nil
}

// RequireBot reports an error when the credentials cmd/bot needs are missing.
func (c *Config) RequireBot() error {
	switch {
	case c.TelegramBotToken == "":
		return errors.New("config: TELEGRAM_BOT_TOKEN must be set")
	case c.TelegramAPIID == 0 || c.TelegramAPIHash == "":
		return errors.New("config: TELEGRAM_API_ID and TELEGRAM_API_HASH must be set")
	case c.DatabaseURL == "":
		return errors.New("config: DATABASE_URL must be set")
	}
	return nil
}

// SessionKey decodes SessionEncryptionKey. It returns nil when sealing is disabled.
func (c *Config) SessionKey() (*[32]byte, error) {
	if c.SessionEncryptionKey == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(c.SessionEncryptionKey)
	if err != nil || len(raw) != 32 {
		return nil, errors.New("config: SESSION_ENCRYPTION_KEY must be 64 hex characters")
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// IdleTimeout parses LoginIdleTimeout. Returns 10m if unset or invalid.
func (c *Config) IdleTimeout() time.Duration {
	return parsePositive(c.LoginIdleTimeout, 10*time.Minute)
}

// SweepInterval parses LoginSweepInterval. Returns 30s if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return parsePositive(c.LoginSweepInterval, 30*time.Second)
}

// ActivationTTL is ActivationTTLDays as a duration.
func (c *Config) ActivationTTL() time.Duration {
	return time.Duration(c.ActivationTTLDays) * 24 * time.Hour
}

func parsePositive(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means the event stream is disabled.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
