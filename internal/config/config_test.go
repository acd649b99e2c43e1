package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.False(t, cfg.Server.Reload)
	assert.Equal(t, 0, cfg.Server.Workers)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "none", cfg.Telemetry.Exporter)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "Task {id} deleted successfully", cfg.Messages.DeleteSuccess)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9000")
	t.Setenv("RELOAD", "true")
	t.Setenv("WORKERS", "4")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("REQUEST_TIMEOUT", "3s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
	assert.True(t, cfg.Server.Reload)
	assert.Equal(t, 4, cfg.Server.Workers)
	assert.Equal(t, "production", cfg.Server.Environment)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.InDelta(t, 2.5, cfg.RateLimit.RPS, 1e-9)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.Server.RequestTimeout)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 7000
  environment: staging
log:
  level: warn
messages:
  delete_success: "Task {id} eliminada correctamente"
`)
	t.Setenv("PORT", "7001")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port, "env must win over file")
	assert.Equal(t, "staging", cfg.Server.Environment)
	assert.Equal(t, slog.LevelWarn, cfg.Log.SlogLevel())
	assert.Equal(t, "Task {id} eliminada correctamente", cfg.Messages.DeleteSuccess)
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"port out of range":  {"PORT": "70000"},
		"unknown log level":  {"LOG_LEVEL": "verbose"},
		"unknown driver":     {"STORE_DRIVER": "postgres"},
		"unknown exporter":   {"OTEL_EXPORTER": "zipkin"},
		"negative workers":   {"WORKERS": "-1"},
		"empty environment":  {"ENVIRONMENT": ""},
		"empty message":      {"DELETE_MESSAGE": ""},
		"zero timeout":       {"REQUEST_TIMEOUT": "0s"},
		"negative rate":      {"RATE_LIMIT_RPS": "-1"},
		"otlp needs address": {"OTEL_EXPORTER": "otlp", "OTEL_ENDPOINT": ""},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelError, LogConfig{Level: "ERROR"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "warning"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "anything"}.SlogLevel())
}

func TestLoader_WatchWithoutFile(t *testing.T) {
	assert.False(t, NewLoader("").Watch(func(*Config, error) {}))
}

func TestLoader_WatchReloads(t *testing.T) {
	path := writeFile(t, "config.yaml", "log:\n  level: info\n")

	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, path, loader.ConfigFileUsed())

	changed := make(chan *Config, 16)
	require.True(t, loader.Watch(func(cfg *Config, err error) {
		if err != nil {
			return
		}
		select {
		case changed <- cfg:
		default:
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	// a single write can surface as several events, some seeing a partial file
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Log.Level == "debug" {
				return
			}
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}
