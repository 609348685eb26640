package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"license-service/internal/pkg/jwt"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type AppConfig struct {
	// Server
	HTTPAddr       string
	AppEnv         string
	AllowedOrigins []string

	// Storage
	StoreDriver string
	DatabaseURL string
	DBMaxConns  int32

	// Redis (optional; rate limits fall back to in-process buckets)
	RedisAddr string
	RedisPass string
	RedisDB   int

	// JWT
	JWT jwt.Config

	// Activation ledger
	LedgerLockTimeout time.Duration
	LedgerMaxRetries  int

	KeygenPrefix      string
	KeygenMaxAttempts int

	// Public validation endpoint, requests per minute per client IP
	ValidateRateLimit int

	ExpirySweepInterval time.Duration
	ExpiryWarnDays      int
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AllowedOrigins: getEnvSlice("WS_ALLOWED_ORIGINS", nil),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  int32(getEnvInt("DB_MAX_CONNS", 20)),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisPass: getEnv("REDIS_PASS", ""),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		JWT: jwt.Config{
			PrivPath: getEnv("JWT_PRIVATE_KEY_PATH", "/app/secrets/jwt_private.pem"),
			PubPath:  getEnv("JWT_PUBLIC_KEY_PATH", "/app/secrets/jwt_public.pem"),
			Issuer:   getEnv("JWT_ISSUER", "license-service"),
			Audience: getEnv("JWT_AUDIENCE", "license-admin"),
			TTL:      getEnvDuration("JWT_TTL", 12*time.Hour),
			KID:      getEnv("JWT_KID", "license-key"),
		},

		LedgerLockTimeout: getEnvDuration("LEDGER_LOCK_TIMEOUT", 3*time.Second),
		LedgerMaxRetries:  getEnvInt("LEDGER_MAX_RETRIES", 3),

		KeygenPrefix:      getEnv("KEYGEN_PREFIX", "LIC"),
		KeygenMaxAttempts: getEnvInt("KEYGEN_MAX_ATTEMPTS", 5),

		ValidateRateLimit: getEnvInt("VALIDATE_RATE_LIMIT", 60),

		ExpirySweepInterval: getEnvDuration("EXPIRY_SWEEP_INTERVAL", time.Hour),
		ExpiryWarnDays:      getEnvInt("EXPIRY_WARN_DAYS", 7),
	}
}

// Validate rejects settings the server cannot start with.
func (c AppConfig) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", DriverPostgres)
		}
	case DriverMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORE_DRIVER=%s is not allowed in production", DriverMemory)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.LedgerLockTimeout <= 0 {
		return fmt.Errorf("LEDGER_LOCK_TIMEOUT must be positive")
	}
	if c.LedgerMaxRetries < 0 {
		return fmt.Errorf("LEDGER_MAX_RETRIES must not be negative")
	}
	if c.KeygenMaxAttempts < 1 {
		return fmt.Errorf("KEYGEN_MAX_ATTEMPTS must be at least 1")
	}
	if c.ValidateRateLimit < 1 {
		return fmt.Errorf("VALIDATE_RATE_LIMIT must be at least 1")
	}
	if c.ExpirySweepInterval <= 0 || c.ExpiryWarnDays < 1 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL and EXPIRY_WARN_DAYS must be positive")
	}
	return nil
}

func (c AppConfig) IsProduction() bool {
	return c.AppEnv == "production"
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

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
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
