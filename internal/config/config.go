// Package config reads process configuration from the environment. A .env
// file in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates everything both processes need; each reads its part.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Gateway  GatewayConfig
	Worker   WorkerConfig
	Channels ChannelsConfig
	AI       AIConfig
	Log      LogConfig
}

type ServerConfig struct {
	Addr string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

// RedisConfig is optional. Without a URL counters stay in memory and the
// worker delivers inline.
type RedisConfig struct {
	URL string
}

func (c RedisConfig) Enabled() bool { return c.URL != "" }

type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	ServiceToken  string
	AdminUsername string
	AdminPassword string
}

type GatewayConfig struct {
	QueueSize         int
	RetryAttempts     int
	RetryBase         time.Duration
	StrictSingleOwner bool
}

type WorkerConfig struct {
	Addr             string
	GatewayURL       string
	DeliveryRetries  int
	Concurrency      int
	MetricsInterval  time.Duration
	InboundPerMinute int
}

type ChannelsConfig struct {
	TelegramToken     string
	WhatsAppEnabled   bool
	WhatsAppDeviceDir string
}

// AIConfig points at the response service. Empty means rule-based replies.
type AIConfig struct {
	ServiceURL string
	Timeout    time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads the environment. Missing required values are reported together.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	intVar := func(key string, def int) int {
		v, err := intEnv(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	durVar := func(key string, def time.Duration) time.Duration {
		v, err := durationEnv(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	boolVar := func(key string, def bool) bool {
		v, err := boolEnv(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	addr, err := listenAddr("PORT", "8080")
	if err != nil {
		errs = append(errs, err)
	}
	workerAddr, err := listenAddr("WORKER_PORT", "8081")
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Config{
		Server: ServerConfig{Addr: addr},
		Database: DatabaseConfig{
			URL:      env("DATABASE_URL", ""),
			MaxConns: int32(intVar("DATABASE_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{URL: env("REDIS_URL", "")},
		Auth: AuthConfig{
			JWTSecret:     env("JWT_SECRET", ""),
			TokenTTL:      durVar("JWT_TTL", 24*time.Hour),
			ServiceToken:  env("SERVICE_TOKEN", ""),
			AdminUsername: env("ADMIN_USERNAME", "root"),
			AdminPassword: env("ADMIN_PASSWORD", ""),
		},
		Gateway: GatewayConfig{
			QueueSize:         intVar("GATEWAY_QUEUE_SIZE", 256),
			RetryAttempts:     intVar("GATEWAY_RETRY_ATTEMPTS", 5),
			RetryBase:         durVar("GATEWAY_RETRY_BASE", 100*time.Millisecond),
			StrictSingleOwner: boolVar("STRICT_SINGLE_OWNER", false),
		},
		Worker: WorkerConfig{
			Addr:             workerAddr,
			GatewayURL:       env("GATEWAY_URL", "ws://localhost:8080/ws"),
			DeliveryRetries:  intVar("DELIVERY_RETRIES", 5),
			Concurrency:      intVar("DELIVERY_CONCURRENCY", 10),
			MetricsInterval:  durVar("METRICS_INTERVAL", 5*time.Second),
			InboundPerMinute: intVar("INBOUND_PER_MINUTE", 30),
		},
		Channels: ChannelsConfig{
			TelegramToken:     env("TELEGRAM_BOT_TOKEN", ""),
			WhatsAppEnabled:   boolVar("WHATSAPP_ENABLED", false),
			WhatsAppDeviceDir: env("WHATSAPP_DEVICE_DIR", "./devices"),
		},
		AI: AIConfig{
			ServiceURL: env("AI_SERVICE_URL", ""),
			Timeout:    durVar("AI_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:  env("LOG_LEVEL", "info"),
			Format: env("LOG_FORMAT", "json"),
		},
	}

	if cfg.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if cfg.Auth.ServiceToken == "" {
		errs = append(errs, errors.New("SERVICE_TOKEN is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// ValidateBackend checks what only the admin backend needs.
func (c *Config) ValidateBackend() error {
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	return nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("invalid %s value: %q", key, raw)
	}
	return v, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("invalid %s value: %q", key, raw)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("invalid %s value: %q", key, raw)
	}
	return v, nil
}

// listenAddr accepts "8080", ":8080" or "127.0.0.1:8080".
func listenAddr(key, def string) (string, error) {
	port := env(key, def)
	if strings.Contains(port, ":") {
		return port, nil
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid %s value: %q", key, port)
	}
	return ":" + port, nil
}
