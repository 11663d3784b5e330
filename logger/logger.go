// Package logger provides the global zerolog logger used across the service.
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	l := zerolog.New(os.Stdout).With().Timestamp().Logger()
	log.Logger = l
	zerolog.DefaultContextLogger = &l
}

// Logger returns the global zerolog Logger.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// SetOutput replaces the writer of the global logger. Tests use it to capture
// audit lines.
func SetOutput(w io.Writer) {
	l := zerolog.New(w).With().Timestamp().Logger()
	log.Logger = l
	zerolog.DefaultContextLogger = &l
}

// SetLevel parses a level name ("debug", "info", ...) and applies it globally.
// Unknown names fall back to info.
func SetLevel(name string) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// Debug starts a new message with debug level.
//
// You must call Msg on the returned event in order to send the event.
func Debug(ctx context.Context) *zerolog.Event {
	return contextLogger(ctx).Debug()
}

// Info starts a new message with info level.
//
// You must call Msg on the returned event in order to send the event.
func Info(ctx context.Context) *zerolog.Event {
	return contextLogger(ctx).Info()
}

// Warn starts a new message with warn level.
//
// You must call Msg on the returned event in order to send the event.
func Warn(ctx context.Context) *zerolog.Event {
	return contextLogger(ctx).Warn()
}

// Error starts a new message with error level.
func Error(ctx context.Context) *zerolog.Event {
	return contextLogger(ctx).Error()
}

// Fatal starts a new message with fatal level. The os.Exit(1) function
// is called by the Msg method.
func Fatal() *zerolog.Event {
	return Logger().Fatal()
}

// WithContext returns a context carrying a child logger with the fields set by update.
func WithContext(ctx context.Context, update func(c zerolog.Context) zerolog.Context) context.Context {
	l := contextLogger(ctx).With().Logger()
	l.UpdateContext(update)
	return l.WithContext(ctx)
}

func contextLogger(ctx context.Context) *zerolog.Logger {
	global := Logger()
	if ctx == nil || global.GetLevel() == zerolog.Disabled {
		return global
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return global
	}
	return l
}
