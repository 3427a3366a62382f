// Package logging builds the application's slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"exportsite/internal/config"
)

// NewLogger returns a logger writing to stdout and, when a logs directory is
// configured, to a size-rotated file in that directory. Production output is
// JSON; other environments use the text handler.
func NewLogger(cfg *config.Config) *slog.Logger {
	return slog.New(NewHandler(cfg, os.Stdout))
}

// NewHandler builds the slog handler for cfg writing to out plus the
// optional rotated log file.
func NewHandler(cfg *config.Config, out io.Writer) slog.Handler {
	writer := out
	if cfg.LogsDirectory != "" {
		rotated := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogsDirectory, cfg.AppName+".log"),
			MaxSize:    cfg.LogsMaxSizeInMb,
			MaxBackups: cfg.LogsMaxBackups,
			MaxAge:     cfg.LogsMaxAgeInDays,
			Compress:   true,
		}
		writer = io.MultiWriter(out, rotated)
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(string(cfg.LogLevel))}
	if cfg.IsProduction() {
		return slog.NewJSONHandler(writer, opts)
	}
	return slog.NewTextHandler(writer, opts)
}

// ParseLevel maps a configured level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case string(config.LogLevelDebug):
		return slog.LevelDebug
	case string(config.LogLevelWarn), "warning":
		return slog.LevelWarn
	case string(config.LogLevelError):
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
