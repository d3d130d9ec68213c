package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen lets the request through when Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed answers 503 when Redis is unavailable.
	FailClosed
)

// Limit is a fixed-window quota for one named resource.
type Limit struct {
	Name     string
	Requests int
	Window   time.Duration
	Policy   FailPolicy
}

// Decision is the outcome of counting one request against a Limit.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the window resets. Zero when allowed.
	RetryAfter time.Duration
}

var errNoRateLimitStore = errors.New("rate limit store not configured")

// rateLimitBypassed is true when APP_ENV is unset, "test", "development"
// or "stress".
func rateLimitBypassed() bool {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development", "stress":
		return true
	}
	return false
}

// RateLimitKey is the Redis counter key for a resource and caller.
func RateLimitKey(resource, id string) string {
	return fmt.Sprintf("rl:%s:%s", resource, id)
}

// CheckRateLimit counts one request by id against l.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, l Limit, id string) (Decision, error) {
	if rateLimitBypassed() {
		return Decision{Allowed: true, Remaining: l.Requests}, nil
	}
	if rdb == nil {
		return Decision{}, errNoRateLimitStore
	}

	key := RateLimitKey(l.Name, id)
	pipe := rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}

	// A negative TTL means the counter was just created or lost its expiry.
	remainingWindow := ttl.Val()
	if remainingWindow < 0 {
		if err := rdb.PExpire(ctx, key, l.Window).Err(); err != nil {
			return Decision{}, err
		}
		remainingWindow = l.Window
	}

	count := int(incr.Val())
	if count > l.Requests {
		return Decision{RetryAfter: remainingWindow}, nil
	}
	return Decision{Allowed: true, Remaining: l.Requests - count}, nil
}

// RateLimit returns a Fiber middleware enforcing l. Callers are keyed by
// the authenticated user when there is one, otherwise by remote IP.
func RateLimit(rdb *redis.Client, l Limit) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		id := "ip:" + c.IP()
		if uid, ok := c.Locals("userID").(uint); ok && uid != 0 {
			id = fmt.Sprintf("user:%d", uid)
		}

		d, err := CheckRateLimit(ctx, rdb, l, id)
		if err != nil {
			if l.Policy == FailOpen {
				return c.Next()
			}
			Logger.WarnContext(ctx, "rate limit store unavailable, failing closed",
				slog.String("resource", l.Name),
				slog.String("error", err.Error()),
			)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "[ServiceUnavailable]: rate limit unavailable",
				"code":  "SERVICE_UNAVAILABLE",
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(l.Requests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			secs := int((d.RetryAfter + time.Second - 1) / time.Second)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(max(secs, 1)))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "[TooManyRequests]: rate limit exceeded",
				"code":  "RATE_LIMITED",
			})
		}
		return c.Next()
	}
}
