package middleware

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"hearth/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/trace"
)

// Logger is the process-wide structured logger. It is rebuilt in main once
// the config is loaded.
var Logger *slog.Logger

type contextKey string

// Request-scoped values the logger copies onto every record.
const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
)

// quietPaths are polled by probes and scrapers and are not access-logged
// unless they fail.
var quietPaths = map[string]bool{
	"/health/live":  true,
	"/health/ready": true,
	"/metrics":      true,
}

// requestContextHandler decorates records with the request id, the
// authenticated user and the active trace.
type requestContextHandler struct {
	slog.Handler
}

func (h requestContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if rid, ok := ctx.Value(RequestIDKey).(string); ok && rid != "" {
		r.AddAttrs(slog.String("request_id", rid))
	}
	if uid, ok := ctx.Value(UserIDKey).(uint); ok && uid != 0 {
		r.AddAttrs(slog.Uint64("user_id", uint64(uid)))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(slog.String("trace_id", sc.TraceID().String()))
	}
	return h.Handler.Handle(ctx, r)
}

func (h requestContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return requestContextHandler{h.Handler.WithAttrs(attrs)}
}

func (h requestContextHandler) WithGroup(name string) slog.Handler {
	return requestContextHandler{h.Handler.WithGroup(name)}
}

func init() {
	Logger = NewLogger(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
}

// NewLogger writes JSON in production and text everywhere else.
func NewLogger(env, levelName string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(levelName)}
	var base slog.Handler
	switch env {
	case "production", "prod":
		base = slog.NewJSONHandler(os.Stdout, opts)
	default:
		base = slog.NewTextHandler(os.Stdout, opts)
	}
	return WithHandler(base)
}

func parseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		if strings.EqualFold(strings.TrimSpace(name), "warning") {
			return slog.LevelWarn
		}
		return slog.LevelInfo
	}
	return level
}

// Component returns the global logger tagged with a component name.
func Component(name string) *slog.Logger {
	return Logger.With(slog.String("component", name))
}

// WithHandler wraps h so records pick up request context values.
func WithHandler(h slog.Handler) *slog.Logger {
	return slog.New(requestContextHandler{h})
}

// ContextMiddleware copies the request id, and the user id when already
// known, from Fiber locals into the request context. AuthRequired adds the
// user id itself once the token is verified.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if rid, ok := c.Locals("requestid").(string); ok {
			ctx = context.WithValue(ctx, RequestIDKey, rid)
		}
		if uid, ok := c.Locals("userID").(uint); ok {
			ctx = context.WithValue(ctx, UserIDKey, uid)
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger access-logs each request. Server errors log at error
// level, client errors at warn and everything else at info.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			// The app error handler has not run yet.
			status = models.AsAppError(err).Status()
		}
		if quietPaths[c.Path()] && status < fiber.StatusBadRequest {
			return err
		}

		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("route", c.Route().Path),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
			slog.String("user_agent", c.Get(fiber.HeaderUserAgent)),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		level := slog.LevelInfo
		switch {
		case status >= fiber.StatusInternalServerError:
			level = slog.LevelError
		case status >= fiber.StatusBadRequest:
			level = slog.LevelWarn
		}
		Logger.LogAttrs(c.UserContext(), level, "request", attrs...)
		return err
	}
}
