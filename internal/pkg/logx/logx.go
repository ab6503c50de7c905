/*
Package logx wraps zerolog with the process-wide logger used by every chatgate component.

The global logger writes a human-readable console format in development and JSON elsewhere.
Components derive child loggers through Component so each line carries a "component" field.
*/
package logx

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitGlobalLogger configures the global zerolog instance.
// Development: Debug level on a colored ConsoleWriter.
// Otherwise: Info level, JSON lines on stdout.
func InitGlobalLogger(isDevelopment bool) {
	var out io.Writer = os.Stdout
	level := zerolog.InfoLevel

	if isDevelopment {
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
		level = zerolog.DebugLevel
	}

	SetOutput(out, level)
}

// SetOutput replaces the global logger's writer and level. Tests use it to capture or silence output.
func SetOutput(w io.Writer, level zerolog.Level) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	log.Logger = zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Logger returns a pointer to the global zerolog.Logger instance.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// Component returns a child of the global logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// Ctx returns the request-scoped logger stored by RequestLogger, or the global logger.
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return Logger()
}

// checkFields drops an odd-length key/value list so zerolog does not misalign keys.
func checkFields(level string, fields []any) []any {
	if len(fields)%2 != 0 {
		Logger().Warn().
			Int("fields_count", len(fields)).
			Str("log_level", level).
			Msg("logx call received an odd number of fields; fields ignored")
		return nil
	}
	return fields
}

// Info records msg at Info level with optional key/value fields.
func Info(msg string, fields ...any) {
	fields = checkFields("Info", fields)

	Logger().Info().
		Fields(fields).
		CallerSkipFrame(1).
		Msg(msg)
}

// Warn records msg at Warn level with optional key/value fields.
func Warn(msg string, fields ...any) {
	fields = checkFields("Warn", fields)

	Logger().Warn().
		Fields(fields).
		CallerSkipFrame(1).
		Msg(msg)
}

// Error records err and msg at Error level with optional key/value fields.
func Error(err error, msg string, fields ...any) {
	fields = checkFields("Error", fields)

	Logger().Error().
		Err(err).
		Fields(fields).
		CallerSkipFrame(1).
		Msg(msg)
}

// Fatal records err and msg at Fatal level and exits the process.
func Fatal(err error, msg string, fields ...any) {
	fields = checkFields("Fatal", fields)

	Logger().Fatal().
		Err(err).
		Fields(fields).
		CallerSkipFrame(1).
		Msg(msg)
}
