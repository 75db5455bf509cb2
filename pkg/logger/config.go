package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Environment names accepted by WithEnvironment.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config is the environment-driven logger configuration.
type Config struct {
	Env        string `env:"APP_ENV" envDefault:"development"`
	Level      string `env:"LOG_LEVEL" envDefault:""`
	Format     string `env:"LOG_FORMAT" envDefault:""`
	File       string `env:"LOG_FILE" envDefault:""`
	MaxSizeMB  int    `env:"LOG_FILE_MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"LOG_FILE_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"LOG_FILE_MAX_AGE_DAYS" envDefault:"14"`
}

// ParseLevel maps a level name to slog.Level. Unknown names return false.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// FromConfig applies the environment preset first, then explicit overrides
// from cfg. A non-empty File switches output to a rotating file.
func FromConfig(cfg Config, service string) Option {
	return func(c *config) {
		WithEnvironment(cfg.Env, service)(c)

		if l, ok := ParseLevel(cfg.Level); ok {
			c.level = l
		}
		switch Format(strings.ToLower(cfg.Format)) {
		case FormatJSON:
			c.format = FormatJSON
		case FormatText:
			c.format = FormatText
		}
		if cfg.File != "" {
			c.output = RotatingFile(cfg)
		}
	}
}

// RotatingFile returns a size-rotated writer for cfg.File.
func RotatingFile(cfg Config) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}

// Stdout is the default destination.
var Stdout io.Writer = os.Stdout
