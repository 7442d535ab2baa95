// Package logger wraps log/slog with the rotation and output shape the
// teacher's internal/config.LogConfig describes, and threads a
// request-scoped logger through context the way the teacher's
// pkg/logger threads a *zap.Logger.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/haahuss/Ticketing-Security-Gate/internal/config"
)

var (
	mu     sync.RWMutex
	global *slog.Logger = slog.Default()
)

// Init builds the process-wide logger from config and installs it as
// both the package default and slog's global default.
func Init(cfg config.LogConfig) {
	level := parseLevel(cfg.Level)

	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: cfg.Caller}

	var w writerish = os.Stdout
	if cfg.Output.ToFile && strings.TrimSpace(cfg.Output.FilePath) != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.Output.FilePath,
			MaxSize:    cfg.Rotation.MaxSizeMB,
			MaxBackups: cfg.Rotation.MaxBackups,
			MaxAge:     cfg.Rotation.MaxAgeDays,
			Compress:   cfg.Rotation.Compress,
			LocalTime:  cfg.Rotation.LocalTime,
		}
	}

	var handler slog.Handler
	if cfg.Format == "console" {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}

	l := slog.New(handler).With(
		slog.String("service", cfg.ServiceName),
		slog.String("env", cfg.Environment),
	)

	mu.Lock()
	global = l
	mu.Unlock()
	slog.SetDefault(l)
}

type writerish interface {
	Write(p []byte) (n int, err error)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the current process-wide logger.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

type ctxKey struct{}

// IntoContext attaches a logger (usually L().With(...) for request
// fields) to ctx.
func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached by IntoContext, or the
// process-wide default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L()
	}
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return L()
}
