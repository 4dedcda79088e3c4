package app

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/stacklok/manifest-sync/internal/config"
)

// LogLevel is the level of the process-wide logger. main builds the handler with it.
var LogLevel = new(slog.LevelVar)

// levelFromEnv is set when MANIFEST_SYNC_LOG_LEVEL chose the level
var levelFromEnv bool

// InitLogLevel sets LogLevel from the MANIFEST_SYNC_LOG_LEVEL environment variable
func InitLogLevel() {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	levelStr := v.GetString("LOG_LEVEL")
	if levelStr == "" {
		return
	}

	level, ok := parseLevel(levelStr)
	if !ok {
		slog.Warn("Invalid log level, using INFO", "value", levelStr)
		return
	}
	LogLevel.Set(level)
	levelFromEnv = true
}

// applyLogLevel sets the level from configuration and the --debug flag.
// The environment variable takes precedence over the configuration file.
func applyLogLevel(cfg *config.Config) {
	if viper.GetBool("debug") {
		LogLevel.Set(slog.LevelDebug)
		return
	}
	if levelFromEnv || cfg == nil {
		return
	}
	if level, ok := parseLevel(cfg.Logging.Level); ok {
		LogLevel.Set(level)
	}
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
