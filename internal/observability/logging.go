// Package observability provides domain logging, metrics, and tracing helpers.
package observability

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

var globalLogger atomic.Pointer[slog.Logger]

func init() {
	globalLogger.Store(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// SetLogger replaces the logger used by the helpers in this package.
func SetLogger(l *slog.Logger) {
	if l != nil {
		globalLogger.Store(l)
	}
}

// Logger returns the package logger.
func Logger() *slog.Logger {
	return globalLogger.Load()
}

// WSLogger logs realtime connection lifecycle and protocol events.
type WSLogger struct {
	hub string
}

// NewWSLogger creates a WSLogger tagged with the hub name.
func NewWSLogger(hub string) *WSLogger {
	return &WSLogger{hub: hub}
}

// LogConnect logs a new authenticated connection.
func (l *WSLogger) LogConnect(ctx context.Context, userID uint) {
	Logger().InfoContext(ctx, "websocket connected",
		slog.String("hub", l.hub),
		slog.Uint64("user_id", uint64(userID)),
	)
}

// LogDisconnect logs a closed connection.
func (l *WSLogger) LogDisconnect(ctx context.Context, userID uint, reason string) {
	Logger().InfoContext(ctx, "websocket disconnected",
		slog.String("hub", l.hub),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("reason", reason),
	)
}

// LogEvent logs an inbound protocol event at debug level and counts it.
func (l *WSLogger) LogEvent(ctx context.Context, userID uint, event string) {
	RecordWebSocketEvent(event)
	Logger().DebugContext(ctx, "websocket event",
		slog.String("hub", l.hub),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("event", event),
	)
}

// LogError logs a failure while handling a protocol event.
func (l *WSLogger) LogError(ctx context.Context, userID uint, event string, err error) {
	Logger().ErrorContext(ctx, "websocket error",
		slog.String("hub", l.hub),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("event", event),
		slog.String("error", err.Error()),
	)
}

// LogCompensation logs and counts a compensating write for a failed saga step.
func LogCompensation(ctx context.Context, saga string, cause, compensateErr error) {
	outcome := "ok"
	attrs := []any{
		slog.String("saga", saga),
		slog.String("cause", cause.Error()),
	}
	if compensateErr != nil {
		outcome = "failed"
		attrs = append(attrs, slog.String("compensate_error", compensateErr.Error()))
	}
	SagaCompensations.WithLabelValues(saga, outcome).Inc()
	if compensateErr != nil {
		Logger().ErrorContext(ctx, "saga compensation failed", attrs...)
		return
	}
	Logger().WarnContext(ctx, "saga compensated", attrs...)
}
