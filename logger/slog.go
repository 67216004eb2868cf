package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/phsym/console-slog"
)

type slogLogger struct {
	logger *slog.Logger
}

// NewSlog returns a Logger writing JSON records to stdout, with the
// timestamp under the "ts" key. The minimum level is fixed at
// construction.
func NewSlog(level Level) Logger {
	opts := &slog.HandlerOptions{
		Level: toSlogLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}

	return &slogLogger{logger: slog.New(slog.NewJSONHandler(os.Stdout, opts))}
}

// NewConsole returns a Logger writing human-readable output to stderr,
// keeping stdout free for the application. The chat CLI uses it.
func NewConsole(level Level) Logger {
	handler := console.NewHandler(os.Stderr, &console.HandlerOptions{
		Level: toSlogLevel(level),
	})

	return &slogLogger{logger: slog.New(handler)}
}

func (l *slogLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelDebug, msg, keysAndValues...)
}

func (l *slogLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelInfo, msg, keysAndValues...)
}

func (l *slogLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelWarn, msg, keysAndValues...)
}

func (l *slogLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelError, msg, keysAndValues...)
}

func toSlogLevel(level Level) slog.Level {
	switch {
	case level <= DebugLevel:
		return slog.LevelDebug
	case level == InfoLevel:
		return slog.LevelInfo
	case level == WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
