package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

// Config controls the global logger.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // "console" or "json"
	Stdout io.Writer
	Stderr io.Writer
}

func init() {
	Setup(Config{Level: "info", Format: "console"})
}

// Setup rebuilds the global logger. Debug, info and warn go to stdout,
// everything from error up goes to stderr.
func Setup(cfg Config) {
	stdout, stderr := cfg.Stdout, cfg.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	var out, errOut io.Writer = stdout, stderr
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}
		errOut = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	}

	writer := zerolog.MultiLevelWriter(
		SpecificLevelWriter{
			Writer: out,
			Levels: []zerolog.Level{
				zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel,
			},
		},
		SpecificLevelWriter{
			Writer: errOut,
			Levels: []zerolog.Level{
				zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel,
			},
		},
	)
	logger = zerolog.New(writer).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the global logger.
func Get() zerolog.Logger {
	return logger
}

// Component returns a child of the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

func Info(msg string) {
	logger.Info().Msg(msg)
}

func Infof(format string, args ...interface{}) {
	logger.Info().Msgf(format, args...)
}

func Warn(msg string) {
	logger.Warn().Msg(msg)
}

func Warnf(format string, args ...interface{}) {
	logger.Warn().Msgf(format, args...)
}

func Error(msg string) {
	logger.Error().Msg(msg)
}

func Errorf(format string, args ...interface{}) {
	logger.Error().Msgf(format, args...)
}

func Debug(msg string) {
	logger.Debug().Msg(msg)
}

func Debugf(format string, args ...interface{}) {
	logger.Debug().Msgf(format, args...)
}

// SpecificLevelWriter forwards only the listed levels to the wrapped writer.
type SpecificLevelWriter struct {
	io.Writer
	Levels []zerolog.Level
}

func (w SpecificLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	for _, l := range w.Levels {
		if l == level {
			return w.Write(p)
		}
	}
	return len(p), nil
}
