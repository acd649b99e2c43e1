package config

import (
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// ServerConfig is passed through to the HTTP serving layer.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	Reload          bool          `mapstructure:"reload"`
	Workers         int           `mapstructure:"workers" validate:"gte=0"`
	Environment     string        `mapstructure:"environment" validate:"required"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// Addr is the listen address, host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn warning error"`
}

// SlogLevel maps the configured level name; unknown names fall back to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=memory sqlite"`
	DSN    string `mapstructure:"dsn" validate:"required_if=Driver sqlite"`
}

type TelemetryConfig struct {
	Exporter    string `mapstructure:"exporter" validate:"required,oneof=none stdout otlp"`
	Endpoint    string `mapstructure:"endpoint" validate:"required_if=Exporter otlp"`
	ServiceName string `mapstructure:"service_name" validate:"required"`
}

// RateLimitConfig disables limiting when RPS is zero.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" validate:"gte=0"`
	Burst int     `mapstructure:"burst" validate:"gte=0"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" validate:"required,min=1"`
}

type MessagesConfig struct {
	// DeleteSuccess may contain "{id}".
	DeleteSuccess string `mapstructure:"delete_success" validate:"required"`
}
