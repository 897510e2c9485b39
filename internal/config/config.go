package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Storage      StorageConfig
	SLA          SLAConfig
	Ticket       TicketConfig
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
	DSN             string
	ApplicationName string
	MaxConns        int32
	MinConns        int32
	RunMigrations   bool
	ConnMaxIdleSec  int32
	ConnMaxLifeSec  int32
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

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig configures in-app and email delivery.
type NotificationConfig struct {
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string
	QueueSize      int
	Workers        int
}

// StorageConfig points at the S3-compatible attachment bucket.
type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	BaseFolder    string
	PublicBaseURL string
}

// SLAConfig holds the business calendar and the sweep schedule.
type SLAConfig struct {
	WorkStartHour    int
	WorkEndHour      int
	Timezone         string
	BreachAfterHours int
	SweepSchedule    string
	SweepEnabled     bool
}

// TicketConfig holds ticket intake settings.
type TicketConfig struct {
	KeyPrefix      string
	MaxUploadBytes int64
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

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
			DSN:             os.Getenv("POSTGRES_DSN"),
			ApplicationName: getEnv("APP_NAME", "support-desk"),
			MaxConns:        maxConns,
			MinConns:        minConns,
			RunMigrations:   runMigrations,
			ConnMaxIdleSec:  connMaxIdle,
			ConnMaxLifeSec:  connMaxLife,
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
		Notification: NotificationConfig{
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
			EmailFrom:      getEnv("NOTIFY_EMAIL_FROM", "support@example.com"),
			EmailFromName:  getEnv("NOTIFY_EMAIL_FROM_NAME", "SCL Support"),
			QueueSize:      getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			Workers:        getEnvAsInt("NOTIFY_WORKERS", 2),
		},
		Storage: StorageConfig{
			Endpoint:      os.Getenv("STORAGE_ENDPOINT"),
			AccessKey:     os.Getenv("STORAGE_ACCESS_KEY"),
			SecretKey:     os.Getenv("STORAGE_SECRET_KEY"),
			Bucket:        getEnv("STORAGE_BUCKET", "support-desk"),
			Region:        os.Getenv("STORAGE_REGION"),
			UseSSL:        getEnvAsBool("STORAGE_USE_SSL", true),
			BaseFolder:    getEnv("STORAGE_BASE_FOLDER", "tickets"),
			PublicBaseURL: os.Getenv("STORAGE_PUBLIC_BASE_URL"),
		},
		SLA: SLAConfig{
			WorkStartHour:    getEnvAsInt("SLA_WORK_START_HOUR", 9),
			WorkEndHour:      getEnvAsInt("SLA_WORK_END_HOUR", 18),
			Timezone:         getEnv("SLA_TIMEZONE", "Local"),
			BreachAfterHours: getEnvAsInt("SLA_BREACH_AFTER_HOURS", 24),
			SweepSchedule:    getEnv("SLA_SWEEP_SCHEDULE", DefaultSweepSchedule),
			SweepEnabled:     getEnvAsBool("SLA_SWEEP_ENABLED", true),
		},
		Ticket: TicketConfig{
			KeyPrefix:      getEnv("TICKET_KEY_PREFIX", "SCLINT"),
			MaxUploadBytes: int64(getEnvAsInt("TICKET_MAX_UPLOAD_BYTES", 10<<20)),
		},
	}

	if err := cfg.SLA.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultSweepSchedule runs the SLA sweep every 15 minutes around the clock.
const DefaultSweepSchedule = "*/15 * * * *"

// BusinessWindowSweepSchedule runs hourly inside the weekday working window.
const BusinessWindowSweepSchedule = "0 9-18 * * 1-5"

// Validate checks calendar bounds, the timezone and the cron expression.
func (s SLAConfig) Validate() error {
	if s.WorkStartHour < 0 || s.WorkStartHour > 23 || s.WorkEndHour < 1 || s.WorkEndHour > 24 || s.WorkEndHour <= s.WorkStartHour {
		return fmt.Errorf("invalid SLA work window %d-%d", s.WorkStartHour, s.WorkEndHour)
	}
	if s.BreachAfterHours <= 0 {
		return fmt.Errorf("invalid SLA_BREACH_AFTER_HOURS: %d", s.BreachAfterHours)
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(s.SweepSchedule); err != nil {
		return fmt.Errorf("invalid SLA_SWEEP_SCHEDULE %q: %w", s.SweepSchedule, err)
	}
	return nil
}

// Location resolves the configured timezone.
func (s SLAConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || strings.EqualFold(s.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SLA_TIMEZONE %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// BreachAfter returns the breach threshold as a duration.
func (s SLAConfig) BreachAfter() time.Duration {
	return time.Duration(s.BreachAfterHours) * time.Hour
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

// Enabled reports whether email delivery is configured.
func (n NotificationConfig) Enabled() bool {
	return strings.TrimSpace(n.SendGridAPIKey) != ""
}

// Enabled reports whether an attachment bucket is configured.
func (s StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.AccessKey != "" && s.SecretKey != ""
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
