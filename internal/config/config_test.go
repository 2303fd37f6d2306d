package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://backend.test:5000/")
	t.Setenv("STORE_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://backend.test:5000", cfg.APIBaseURL)
	assert.Equal(t, 10*time.Second, cfg.APITimeout)
	assert.Equal(t, DriverFile, cfg.StoreDriver)
	assert.Equal(t, "/login", cfg.LoginPath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_TIMEOUT", "3s")
	t.Setenv("STORE_DRIVER", "Redis")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("CORS_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("RATE_LIMIT_RPM", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.APITimeout)
	assert.Equal(t, DriverRedis, cfg.StoreDriver)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, 300, cfg.RateLimitRPM)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			ServerPort:     "8090",
			APIBaseURL:     "https://api.example.com",
			APITimeout:     time.Second,
			RequestTimeout: time.Second,
			StoreDriver:    DriverMemory,
			StoreNamespace: "default",
			LoginPath:      "/login",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "relative base url", mutate: func(c *Config) { c.APIBaseURL = "/api" }, wantErr: "API_BASE_URL"},
		{name: "zero api timeout", mutate: func(c *Config) { c.APITimeout = 0 }, wantErr: "API_TIMEOUT"},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "etcd" }, wantErr: "STORE_DRIVER"},
		{name: "postgres without url", mutate: func(c *Config) { c.StoreDriver = DriverPostgres }, wantErr: "DATABASE_URL"},
		{name: "sqlite without path", mutate: func(c *Config) { c.StoreDriver = DriverSQLite }, wantErr: "STORE_PATH"},
		{name: "login path", mutate: func(c *Config) { c.LoginPath = "login" }, wantErr: "LOGIN_PATH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
