package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

var drivers = []string{DriverMemory, DriverFile, DriverSQLite, DriverPostgres, DriverRedis}

type Config struct {
	ServerPort          string
	ServerReadTimeout   time.Duration
	ServerWriteTimeout  time.Duration
	ServerIdleTimeout   time.Duration
	RequestTimeout      time.Duration
	APIBaseURL          string
	APITimeout          time.Duration
	StoreDriver         string
	StorePath           string
	StoreNamespace      string
	StoreEncryptionKey  string
	DatabaseURL         string
	DBMaxConns          int32
	DBMinConns          int32
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	CORSOrigins         []string
	RateLimitRPM        int
	SessionRateLimitRPM int
	LoginPath           string
	LogLevel            string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:          getEnv("SERVER_PORT", "8090"),
		ServerReadTimeout:   getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout:  getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:   getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:      getDuration("REQUEST_TIMEOUT", 30*time.Second),
		APIBaseURL:          strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:5000"), "/"),
		APITimeout:          getDuration("API_TIMEOUT", 10*time.Second),
		StoreDriver:         strings.ToLower(getEnv("STORE_DRIVER", DriverFile)),
		StorePath:           getEnv("STORE_PATH", "./state/session.json"),
		StoreNamespace:      getEnv("STORE_NAMESPACE", "default"),
		StoreEncryptionKey:  strings.TrimSpace(os.Getenv("STORE_ENCRYPTION_KEY")),
		DatabaseURL:         strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:          int32(getInt("DB_MAX_CONNS", 4)),
		DBMinConns:          int32(getInt("DB_MIN_CONNS", 0)),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getInt("REDIS_DB", 0),
		CORSOrigins:         splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:        getInt("RATE_LIMIT_RPM", 300),
		SessionRateLimitRPM: getInt("SESSION_RATE_LIMIT_RPM", 20),
		LoginPath:           getEnv("LOGIN_PATH", "/login"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL")
	}

	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if !slices.Contains(drivers, c.StoreDriver) {
		return fmt.Errorf("STORE_DRIVER must be one of %s", strings.Join(drivers, ", "))
	}

	switch c.StoreDriver {
	case DriverFile, DriverSQLite:
		if strings.TrimSpace(c.StorePath) == "" {
			return fmt.Errorf("STORE_PATH is required for the %s driver", c.StoreDriver)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis driver")
		}
	}

	if c.StoreNamespace == "" {
		return fmt.Errorf("STORE_NAMESPACE cannot be empty")
	}

	if !strings.HasPrefix(c.LoginPath, "/") {
		return fmt.Errorf("LOGIN_PATH must start with /")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
