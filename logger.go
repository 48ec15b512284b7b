package imbin

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger with imbin-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithShard adds a shard field to the logger.
func (l *Logger) WithShard(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("shard", name),
	}
}

// LogInit logs the iterator startup line.
func (l *Logger) LogInit(ctx context.Context, lists, bins []string, bufferSize, pageSize int) {
	l.InfoContext(ctx, "image page iterator initialized",
		"image_list", strings.Join(lists, ","),
		"image_bin", strings.Join(bins, ","),
		"buffer_size", bufferSize,
		"page_size", pageSize,
	)
}

// LogEpoch logs the end of an epoch.
func (l *Logger) LogEpoch(ctx context.Context, epoch int, samples int64, elapsed time.Duration) {
	l.InfoContext(ctx, "epoch completed",
		"epoch", epoch,
		"samples", samples,
		"elapsed", elapsed,
	)
}

// LogShardOpen logs a shard being opened by the producer.
func (l *Logger) LogShardOpen(ctx context.Context, index int, name string, size int64) {
	l.DebugContext(ctx, "shard opened",
		"index", index,
		"shard", name,
		"size", size,
	)
}

// LogDecodeFailure logs a sample that could not be decoded.
func (l *Logger) LogDecodeFailure(ctx context.Context, list string, index uint32, size int, err error) {
	l.ErrorContext(ctx, "decode failed",
		"list", list,
		"index", index,
		"size", size,
		"error", err,
	)
}
