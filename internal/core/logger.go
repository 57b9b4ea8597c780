package core

import (
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)

// quietLevel is set above slog.LevelError so a "quiet" verbosity setting
// suppresses every record without needing a second handler.
const quietLevel = slog.LevelError + 4

// ConfigureLogging sets up the global default logger with a TextHandler and
// configures the log level from the MLCR_LOG_LEVEL environment variable,
// falling back to Info. Call this once at process startup (mirrored by
// Config.Verbosity at Init, see config.go) to get the library's default
// logging behavior.
func ConfigureLogging() {
	logLevel.Set(slog.LevelInfo)

	switch os.Getenv("MLCR_LOG_LEVEL") {
	case "quiet":
		logLevel.Set(quietLevel)
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "warn":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevelFromVerbosity maps the configuration file's verbosity option
// (quiet/info/warn/debug/error) onto the logger configured by
// ConfigureLogging.
func SetLogLevelFromVerbosity(verbosity string) {
	switch verbosity {
	case "quiet":
		logLevel.Set(quietLevel)
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "warn":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}
}

// SetLogLevel sets the logging level directly for the logger configured by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}
