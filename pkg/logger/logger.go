// Package logger adapts slog loggers to third-party logging interfaces.
package logger

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Component returns base tagged with a component attribute.
func Component(base *slog.Logger, name string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("component", name)
}

type cronLogger struct {
	log *slog.Logger
}

// Cron bridges slog to the cron.Logger interface. Cron's chatty
// scheduling messages are emitted at debug level.
func Cron(base *slog.Logger) cron.Logger {
	return cronLogger{log: Component(base, "cron")}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
