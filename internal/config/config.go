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
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	NATS         NATSConfig
	SLA          SLAConfig
	Concurrency  ConcurrencyConfig
	Policy       PolicyConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	TimeZone              string
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

// RedisConfig holds Redis connection values. An empty Addr disables the cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
	Service     string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	Enforce               bool
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// NATSConfig configures the event bridge. An empty URL disables it.
type NATSConfig struct {
	URL                   string
	SubjectPrefix         string
	ReconnectWaitSeconds  int
	MaxReconnects         int
	ConnectTimeoutSeconds int
}

// SLAConfig configures the periodic sweep.
type SLAConfig struct {
	SweepIntervalSeconds int
	SweepTimeoutSeconds  int
	ReportTTLSeconds     int
	PageSize             int
}

// ConcurrencyConfig bounds retries on optimistic version conflicts.
type ConcurrencyConfig struct {
	MaxRetries int
	BackoffMS  int
}

// PolicyConfig points at the optional policy registry file.
type PolicyConfig struct {
	Path string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	tz := getEnv("TIMEZONE", "UTC")
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "civic-requests"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			TimeZone:              tz,
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
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnv("APP_ENV", "development") == "development",
			Service:     getEnv("APP_NAME", "civic-requests"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			Enforce:               getEnvAsBool("AUTH_ENFORCE", false),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		NATS: NATSConfig{
			URL:                   os.Getenv("NATS_URL"),
			SubjectPrefix:         getEnv("NATS_SUBJECT_PREFIX", "civic.requests"),
			ReconnectWaitSeconds:  getEnvAsInt("NATS_RECONNECT_WAIT_SECONDS", 2),
			MaxReconnects:         getEnvAsInt("NATS_MAX_RECONNECTS", 60),
			ConnectTimeoutSeconds: getEnvAsInt("NATS_CONNECT_TIMEOUT_SECONDS", 5),
		},
		SLA: SLAConfig{
			SweepIntervalSeconds: getEnvAsInt("SLA_SWEEP_INTERVAL_SECONDS", 300),
			SweepTimeoutSeconds:  getEnvAsInt("SLA_SWEEP_TIMEOUT_SECONDS", 60),
			ReportTTLSeconds:     getEnvAsInt("SLA_REPORT_TTL_SECONDS", 600),
			PageSize:             getEnvAsInt("SLA_SWEEP_PAGE_SIZE", 200),
		},
		Concurrency: ConcurrencyConfig{
			MaxRetries: getEnvAsInt("CONCURRENCY_MAX_RETRIES", 3),
			BackoffMS:  getEnvAsInt("CONCURRENCY_BACKOFF_MS", 10),
		},
		Policy: PolicyConfig{
			Path: os.Getenv("POLICY_FILE"),
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

// Location returns the configured time zone, falling back to UTC.
func (a AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SweepInterval returns the sweep period; zero disables the sweeper.
func (s SLAConfig) SweepInterval() time.Duration {
	if s.SweepIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// SweepTimeout returns the per-run deadline.
func (s SLAConfig) SweepTimeout() time.Duration {
	if s.SweepTimeoutSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(s.SweepTimeoutSeconds) * time.Second
}

// ReportTTL returns how long a cached report stays valid.
func (s SLAConfig) ReportTTL() time.Duration {
	if s.ReportTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(s.ReportTTLSeconds) * time.Second
}

// Backoff returns the base delay between retries.
func (c ConcurrencyConfig) Backoff() time.Duration {
	if c.BackoffMS < 0 {
		return 0
	}
	return time.Duration(c.BackoffMS) * time.Millisecond
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
