// Package cache owns the shared Redis client and the cache-aside helpers
// used by repositories.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hearth/internal/middleware"
	"hearth/internal/observability"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

var client *redis.Client

// instrumentation feeds command outcomes into the Redis metrics. A cache
// miss (redis.Nil) is not an error.
type instrumentation struct{}

func (instrumentation) DialHook(next redis.DialHook) redis.DialHook { return next }

func (instrumentation) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		observe(cmd.Name(), start, err)
		return err
	}
}

func (instrumentation) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		observe("pipeline", start, err)
		return err
	}
}

func observe(op string, start time.Time, err error) {
	observability.RedisCommandLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, redis.Nil) {
		middleware.RedisErrors.WithLabelValues(op).Inc()
		observability.RedisErrorRate.WithLabelValues(op).Inc()
	}
}

// ParseOptions accepts either a redis:// URL or a bare host:port.
func ParseOptions(raw string) (*redis.Options, error) {
	if !strings.Contains(raw, "://") {
		if raw == "" {
			return nil, errors.New("redis address is empty")
		}
		return &redis.Options{Addr: raw}, nil
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}

// Connect dials Redis, verifies it answers PING and installs the client as
// the package-wide cache client. On failure the package is left without a
// client and cache reads fall through to the database.
func Connect(ctx context.Context, raw string) (*redis.Client, error) {
	opts, err := ParseOptions(raw)
	if err != nil {
		client = nil
		return nil, err
	}

	c := redis.NewClient(opts)
	c.AddHook(instrumentation{})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		client = nil
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	client = c
	middleware.Logger.Info("redis connected", slog.String("addr", opts.Addr), slog.Int("db", opts.DB))
	return c, nil
}

// SetClient installs c as the shared client without dialing. Tests use it
// to point the package at miniredis.
func SetClient(c *redis.Client) {
	if c != nil {
		c.AddHook(instrumentation{})
	}
	client = c
}

// Client returns the shared client, or nil when Redis is unavailable.
func Client() *redis.Client {
	return client
}
