/*
Package logx provides a structured logging wrapper based on zerolog.

It initializes the global logger, picks the output format (JSON or console) from the
environment, hands out per-component and per-request child loggers and offers helper
functions for the Info, Warn, Error and Fatal levels.
*/
package logx

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitGlobalLogger initializes the global zerolog instance.
// Development logs at Debug level through a ConsoleWriter, production logs JSON at Info level.
// A non-empty level (see zerolog.ParseLevel) overrides the environment default.
func InitGlobalLogger(isDevelopment bool, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	defaultLevel := zerolog.InfoLevel

	if isDevelopment {
		logger = logger.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
		defaultLevel = zerolog.DebugLevel
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = defaultLevel
	}

	log.Logger = logger.Level(lvl).With().Caller().Logger()

	if err != nil {
		log.Logger.Warn().Err(err).Str("log_level", level).Msg("Unknown log level, using default.")
	}
}

// Logger returns a pointer to the global zerolog.Logger instance.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// Component returns a child logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// FromContext returns the request logger installed by RequestLogger, or the global logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return Logger()
}

// checkFields validates that the variadic fields parameter has an even number (key-value pairs).
// If the count is odd, it logs a warning and returns nil to prevent zerolog from panicking.
func checkFields(level string, fields []any) []any {
	if len(fields)%2 != 0 {
		Logger().Warn().
			Int("fields_count", len(fields)).
			Str("log_level", level).
			Msgf("Logx call (%s) received odd number of fields: %v. Fields ignored.", level, fields)
		return nil
	}
	return fields
}

// emit finishes e. It is only called from the level helpers below, so the caller frame is two up.
func emit(e *zerolog.Event, level string, err error, msg string, fields []any) {
	if err != nil {
		e = e.Err(err)
	}

	e.Fields(checkFields(level, fields)).
		CallerSkipFrame(2).
		Msg(msg)
}

// Info records a log message at the Info level with an optional key-value field list.
func Info(msg string, fields ...any) {
	emit(Logger().Info(), "Info", nil, msg, fields)
}

// Warn records a log message at the Warn level with an optional key-value field list.
func Warn(msg string, fields ...any) {
	emit(Logger().Warn(), "Warn", nil, msg, fields)
}

// Error records err and a message at the Error level.
func Error(err error, msg string, fields ...any) {
	emit(Logger().Error(), "Error", err, msg, fields)
}

// Fatal records err and a message at the Fatal level and then exits the process.
func Fatal(err error, msg string, fields ...any) {
	emit(Logger().Fatal(), "Fatal", err, msg, fields)
}
