package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs a zerolog.Logger from the configured level and format.
// Unknown levels fall back to info; "console" (or a development environment)
// switches to the human readable writer.
func NewLogger(cfg *Config) zerolog.Logger {
	return newLogger(os.Stdout, cfg.AppEnv, cfg.LogLevel, cfg.LogFormat)
}

func newLogger(out io.Writer, appEnv, levelName, format string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if appEnv == "development" && levelName == "" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "genesis").
		Logger()

	if format == "console" || appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	return logger
}

// NopLogger returns a logger that discards everything. Components fall back to
// it when constructed without a logger.
func NopLogger() *Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// Logger aliases the zerolog.Logger so callers outside the infra package can
// depend on the logging contract without importing the third-party module
// directly.
type Logger = zerolog.Logger
