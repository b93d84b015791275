package db

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/tracelog"
)

// NewTraceLogger adapts pgx trace output onto slog. If logger is nil,
// slog.Default() is used.
func NewTraceLogger(logger *slog.Logger) tracelog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return tracelog.LoggerFunc(func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		attrs := make([]any, 0, 2*len(data)+2)
		attrs = append(attrs, "op", msg)
		for k, v := range data {
			attrs = append(attrs, k, v)
		}
		logger.Log(ctx, slogLevel(level), "sql", attrs...)
	})
}

func slogLevel(level tracelog.LogLevel) slog.Level {
	switch level {
	case tracelog.LogLevelError:
		return slog.LevelError
	case tracelog.LogLevelWarn:
		return slog.LevelWarn
	case tracelog.LogLevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
