// Package logger wraps zerolog with context-carried fields. Every field added
// through the With* helpers rides along on the context and shows up on each
// later entry logged with that context.
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures New.
type Options struct {
	ServiceName string
	// Level defaults to info.
	Level zerolog.Level
	// WarnStack adds a stack trace to warnings as well as errors.
	WarnStack bool
	// Console switches from JSON lines to zerolog's human readable writer.
	Console bool
	Output  io.Writer
}

type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return &Logger{
		base:      zerolog.New(out).Level(level).With().Timestamp().Str("service", opts.ServiceName).Logger(),
		warnStack: opts.WarnStack,
	}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{base: zerolog.Nop()}
}

// ParseLevel maps a config string to a level, falling back to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// from returns the logger stored on ctx by this package, or the base logger.
// zerolog.Ctx hands back a disabled logger when nothing was attached.
func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if scoped := zerolog.Ctx(ctx); scoped.GetLevel() != zerolog.Disabled {
			return scoped
		}
	}
	return &l.base
}

func (l *Logger) with(ctx context.Context, update func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	scoped := update(l.from(ctx).With()).Logger()
	return scoped.WithContext(ctx)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Fields(fields) })
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Str("request_id", requestID) })
}

func (l *Logger) WithUserID(ctx context.Context, userID string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Str("user_id", userID) })
}

func (l *Logger) WithSessionID(ctx context.Context, sessionID string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Str("checkout_session_id", sessionID) })
}

func (l *Logger) WithOrderID(ctx context.Context, orderID string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Str("order_id", orderID) })
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.from(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.from(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	e := l.from(ctx).Warn()
	if l.warnStack && e.Enabled() {
		e = e.Str("stack", stack())
	}
	e.Msg(msg)
}

// Error always carries a stack trace.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	e := l.from(ctx).Error()
	if !e.Enabled() {
		return
	}
	e.Err(err).Str("stack", stack()).Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
