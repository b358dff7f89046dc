// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"entitlement-service/internal/pkg/jwt"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type AppConfig struct {
	// Server
	HTTPAddr        string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	WebhookSecret   string

	// Storage
	StoreDriver    string
	DatabaseURL    string
	DBMaxConns     int
	DBMinConns     int
	MongoURL       string
	MongoDB        string
	ConnectRetries int
	ConnectBackoff time.Duration

	// Redis (optional, enables the scheduler lease)
	RedisAddr string
	RedisPass string
	RedisDB   int

	// Per-contributor write throttle, active only with Redis
	WriteRateLimit  int
	WriteRateWindow time.Duration

	// Scheduler
	SchedulerEnabled   bool
	ExpirySweepSpec    string
	NearExpiryScanSpec string
	SchedulerTZ        string
	JobTimeout         time.Duration
	LockTTL            time.Duration
	RunOnStart         bool

	// JWT
	JWT jwt.Config

	// SMTP
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPFromName string
	SMTPSecure   bool
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8000"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		CORSOrigins:     getEnvSlice("CORS_ORIGINS", nil),
		WebhookSecret:   getEnv("WEBHOOK_SECRET", ""),

		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBMaxConns:     getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:     getEnvInt("DB_MIN_CONNS", 1),
		MongoURL:       getEnv("MONGODB_URL", ""),
		MongoDB:        getEnv("MONGODB_DB", "entitlements"),
		ConnectRetries: getEnvInt("CONNECT_RETRIES", 5),
		ConnectBackoff: getEnvDuration("CONNECT_BACKOFF", 2*time.Second),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisPass: getEnv("REDIS_PASS", ""),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		WriteRateLimit:  getEnvInt("WRITE_RATE_LIMIT", 30),
		WriteRateWindow: getEnvDuration("WRITE_RATE_WINDOW", time.Minute),

		SchedulerEnabled:   getEnvBool("SCHEDULER_ENABLED", true),
		ExpirySweepSpec:    getEnv("EXPIRY_SWEEP_SPEC", "0 0 2 * * *"),
		NearExpiryScanSpec: getEnv("NEAR_EXPIRY_SCAN_SPEC", "0 0 * * * *"),
		SchedulerTZ:        getEnv("SCHEDULER_TZ", "UTC"),
		JobTimeout:         getEnvDuration("JOB_TIMEOUT", 5*time.Minute),
		LockTTL:            getEnvDuration("LOCK_TTL", 6*time.Minute),
		RunOnStart:         getEnvBool("RUN_ON_START", true),

		JWT: jwt.Config{
			PrivPath: getEnv("JWT_PRIVATE_KEY_PATH", ""),
			PubPath:  getEnv("JWT_PUBLIC_KEY_PATH", "/app/secrets/jwt_public.pem"),
			Issuer:   getEnv("JWT_ISSUER", "contributor-platform"),
			Audience: getEnv("JWT_AUDIENCE", "contributors"),
			TTL:      getEnvDuration("JWT_TTL", 24*time.Hour),
			KID:      getEnv("JWT_KID", "entitlement-key"),
		},

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "465"),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPass:     getEnv("SMTP_PASS", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "Contributor Platform"),
		SMTPSecure:   getEnvBool("SMTP_SECURE", true),
	}
}

// Validate rejects combinations the server cannot start with.
func (c AppConfig) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s driver", c.StoreDriver)
		}
	case DriverMongo:
		if c.MongoURL == "" {
			return fmt.Errorf("MONGODB_URL is required for the %s driver", c.StoreDriver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.LockTTL > 0 && c.JobTimeout > 0 && c.LockTTL < c.JobTimeout {
		return fmt.Errorf("LOCK_TTL (%s) must not be shorter than JOB_TIMEOUT (%s)", c.LockTTL, c.JobTimeout)
	}
	return nil
}

// Location resolves SCHEDULER_TZ.
func (c AppConfig) Location() (*time.Location, error) {
	if c.SchedulerTZ == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.SchedulerTZ)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_TZ %q: %w", c.SchedulerTZ, err)
	}
	return loc, nil
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
