package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // QUEUE_TIMEZONE must resolve in minimal images

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Queue    QueueConfig
	Chat     ChatConfig
	Realtime RealtimeConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	PoolSize       int
	DialTimeoutSec int
}

// DialTimeout bounds connecting and the startup ping. It never drops below a
// second.
func (r RedisConfig) DialTimeout() time.Duration {
	if r.DialTimeoutSec <= 0 {
		return time.Second
	}
	return time.Duration(r.DialTimeoutSec) * time.Second
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig describes how identity provider tokens are verified.
type AuthConfig struct {
	JWTSecret  string
	CookieName string
}

// QueueConfig tunes the ticket assignment queue.
type QueueConfig struct {
	Timezone            string
	ShiftEndBufferMins  int
	MaxClaimAttempts    int
	AssignOnAuthEnabled bool
}

// ChatConfig tunes message paging.
type ChatConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// RealtimeConfig names the push channel the service publishes to.
type RealtimeConfig struct {
	Enabled       bool
	ChannelPrefix string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-desk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:       os.Getenv("REDIS_PASSWORD"),
			DB:             redisDB,
			PoolSize:       getEnvAsInt("REDIS_POOL_SIZE", 10),
			DialTimeoutSec: getEnvAsInt("REDIS_DIAL_TIMEOUT_SECONDS", 5),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("AUTH_JWT_SECRET", "dev-secret"),
			CookieName: getEnv("AUTH_COOKIE_NAME", "access_token"),
		},
		Queue: QueueConfig{
			Timezone:            getEnv("QUEUE_TIMEZONE", "UTC"),
			ShiftEndBufferMins:  getEnvAsInt("QUEUE_SHIFT_END_BUFFER_MINUTES", 15),
			MaxClaimAttempts:    getEnvAsInt("QUEUE_MAX_CLAIM_ATTEMPTS", 3),
			AssignOnAuthEnabled: getEnvAsBool("QUEUE_ASSIGN_ON_AUTH", true),
		},
		Chat: ChatConfig{
			DefaultPageSize: getEnvAsInt("CHAT_DEFAULT_PAGE_SIZE", 20),
			MaxPageSize:     getEnvAsInt("CHAT_MAX_PAGE_SIZE", 100),
		},
		Realtime: RealtimeConfig{
			Enabled:       getEnvAsBool("REALTIME_ENABLED", true),
			ChannelPrefix: getEnv("REALTIME_CHANNEL_PREFIX", "support"),
		},
	}

	if _, err := cfg.Queue.Location(); err != nil {
		return nil, fmt.Errorf("invalid QUEUE_TIMEZONE: %w", err)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Location resolves the reference timezone used for working-hours checks.
func (q QueueConfig) Location() (*time.Location, error) {
	if q.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(q.Timezone)
}

// ShiftEndBuffer returns how long before shift end agents stop receiving tickets.
func (q QueueConfig) ShiftEndBuffer() time.Duration {
	if q.ShiftEndBufferMins < 0 {
		return 0
	}
	return time.Duration(q.ShiftEndBufferMins) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
