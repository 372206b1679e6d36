package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Notify   NotifyConfig
	Engine   EngineConfig
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
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer-token verification parameters for the agent API.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotifyConfig configures the outbound message gateway and realtime fan-out.
type NotifyConfig struct {
	GatewayURL           string
	ClientTimeoutSeconds int
	RealtimeChannel      string
	AdminAlertPhone      string
}

// EngineConfig tunes lifecycle-engine behavior. These were hard-coded in
// earlier revisions and are deliberately injectable now.
type EngineConfig struct {
	CSATWindowHours     int
	CSATSessionLookback int
	AllowClosedTransfer bool
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
			Name:                  getEnv("APP_NAME", "ticket-engine"),
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
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notify: NotifyConfig{
			GatewayURL:           getEnv("NOTIFY_GATEWAY_URL", ""),
			ClientTimeoutSeconds: getEnvAsInt("NOTIFY_CLIENT_TIMEOUT_SECONDS", 5),
			RealtimeChannel:      getEnv("NOTIFY_REALTIME_CHANNEL", "tickets:events"),
			AdminAlertPhone:      getEnv("NOTIFY_ADMIN_PHONE", ""),
		},
		Engine: EngineConfig{
			CSATWindowHours:     getEnvAsInt("ENGINE_CSAT_WINDOW_HOURS", 72),
			CSATSessionLookback: getEnvAsInt("ENGINE_CSAT_SESSION_LOOKBACK", 10),
			AllowClosedTransfer: getEnvAsBool("ENGINE_ALLOW_CLOSED_TRANSFER", true),
		},
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

// ClientTimeout returns the outbound notifier timeout.
func (n NotifyConfig) ClientTimeout() time.Duration {
	if n.ClientTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(n.ClientTimeoutSeconds) * time.Second
}

// CSATWindow returns the satisfaction-reply eligibility window.
func (e EngineConfig) CSATWindow() time.Duration {
	if e.CSATWindowHours <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(e.CSATWindowHours) * time.Hour
}

// SessionLookback returns how many recent sessions the CSAT responder scans.
func (e EngineConfig) SessionLookback() int {
	if e.CSATSessionLookback <= 0 {
		return 10
	}
	return e.CSATSessionLookback
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
