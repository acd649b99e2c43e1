package config

import (
	"errors"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"server.host":             "HOST",
	"server.port":             "PORT",
	"server.reload":           "RELOAD",
	"server.workers":          "WORKERS",
	"server.environment":      "ENVIRONMENT",
	"server.request_timeout":  "REQUEST_TIMEOUT",
	"server.shutdown_timeout": "SHUTDOWN_TIMEOUT",
	"log.level":               "LOG_LEVEL",
	"store.driver":            "STORE_DRIVER",
	"store.dsn":               "STORE_DSN",
	"telemetry.exporter":      "OTEL_EXPORTER",
	"telemetry.endpoint":      "OTEL_ENDPOINT",
	"telemetry.service_name":  "OTEL_SERVICE_NAME",
	"ratelimit.rps":           "RATE_LIMIT_RPS",
	"ratelimit.burst":         "RATE_LIMIT_BURST",
	"cors.allowed_origins":    "CORS_ALLOWED_ORIGINS",
	"messages.delete_success": "DELETE_MESSAGE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.reload", false)
	v.SetDefault("server.workers", 0)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.request_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "file::memory:?_pragma=busy_timeout(5000)")
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "tasks-api")
	v.SetDefault("ratelimit.rps", 0)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("messages.delete_success", "Task {id} deleted successfully")
}

// Loader reads configuration and can watch the config file for changes.
type Loader struct {
	v        *viper.Viper
	file     string
	validate *validator.Validate
}

// NewLoader prepares a loader. configFile may be empty, in which case only
// defaults and environment variables are used.
func NewLoader(configFile string) *Loader {
	v := viper.New()
	v.AllowEmptyEnv(true)
	setDefaults(v)
	for key, env := range envBindings {
		// BindEnv only fails when called without a key
		_ = v.BindEnv(key, env)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	return &Loader{
		v:        v,
		file:     configFile,
		validate: validator.New(),
	}
}

// Load reads the config file (if any), applies env overrides and validates the result.
func (l *Loader) Load() (*Config, error) {
	if l.file != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %q: %w", l.file, err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := l.validate.Struct(&cfg); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) && len(vErrs) > 0 {
			fe := vErrs[0]
			return nil, fmt.Errorf("invalid config: %s failed %q: %w", fe.Namespace(), fe.Tag(), err)
		}
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the config file, or "" if none.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with the re-decoded config every time the config file
// changes. It reports false when there is no file to watch.
func (l *Loader) Watch(onChange func(*Config, error)) bool {
	if l.file == "" {
		return false
	}
	l.v.OnConfigChange(func(fsnotify.Event) {
		onChange(l.decode())
	})
	l.v.WatchConfig()
	return true
}

// Load is shorthand for NewLoader(configFile).Load().
func Load(configFile string) (*Config, error) {
	return NewLoader(configFile).Load()
}
