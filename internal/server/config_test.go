package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SERVER_PORT", "ALLOWED_ORIGINS", "MAX_MESSAGE_SIZE", "RATE_LIMIT_BURST",
		"RATE_LIMIT_REFILL_INTERVAL", "WS_SEND_BUFFER", "WS_CLOSE_SUPERSEDED",
		"JWT_ACCESS_SECRET", "DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD",
		"LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(64*1024), cfg.MaxMessageSize)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.False(t, cfg.CloseSuperseded)
	assert.Equal(t, "kolmo", cfg.Redis.Prefix)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "kolmo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: ":9000"
allowed_origins:
  - "HTTPS://App.Example.com"
  - "not a url"
rate_limit:
  burst: 7
  refill_interval: 2s
close_superseded: true
redis:
  addr: "localhost:6379"
  ttl: 90s
log:
  level: debug
`), 0o600))

	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("RATE_LIMIT_BURST", "11")
	t.Setenv("JWT_ACCESS_SECRET", "s3cret")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Port, "env wins and bare ports get a colon")
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 11, cfg.RateLimit.Burst)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)
	assert.True(t, cfg.CloseSuperseded)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 90*time.Second, cfg.Redis.TTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
}

func TestLoadConfigErrors(t *testing.T) {
	clearConfigEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o600))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestApplyEnvIgnoresInvalidValues(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("MAX_MESSAGE_SIZE", "-5")
	t.Setenv("RATE_LIMIT_BURST", "lots")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "250ms")
	t.Setenv("WS_CLOSE_SUPERSEDED", "maybe")
	t.Setenv("ALLOWED_ORIGINS", " http://a.test , *")

	cfg := DefaultConfig()
	ApplyEnv(&cfg)
	cfg = Sanitize(cfg)

	assert.Equal(t, int64(64*1024), cfg.MaxMessageSize)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, 250*time.Millisecond, cfg.RateLimit.RefillInterval)
	assert.False(t, cfg.CloseSuperseded)
	assert.Equal(t, []string{"http://a.test", "*"}, cfg.AllowedOrigins)
}

func TestSanitizeFillsZeroValues(t *testing.T) {
	cfg := Sanitize(Config{Redis: RedisConfig{TTL: -time.Second}})

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, 256, cfg.SendBuffer)
	assert.Equal(t, time.Duration(0), cfg.Redis.TTL)
	assert.Nil(t, cfg.AllowedOrigins)
}
