package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hearth/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	UserKeyPrefix    = "user:%d"
	GroupKeyPrefix   = "group:%d"
	ProfileKeyPrefix = "profile:%d"
)

const (
	UserTTL    = 5 * time.Minute
	GroupTTL   = 10 * time.Minute
	ProfileTTL = 2 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func GroupKey(groupID uint) string {
	return fmt.Sprintf(GroupKeyPrefix, groupID)
}

func ProfileKey(userID uint) string {
	return fmt.Sprintf(ProfileKeyPrefix, userID)
}

// Aside reads key into dest. On a miss it calls fetch, which must fill dest,
// and stores the result for ttl. Without a Redis client it just calls fetch.
// Cache failures are logged and never fail the read.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	if client == nil {
		return fetch()
	}

	raw, err := client.Get(ctx, key).Bytes()
	if err == nil {
		if jsonErr := json.Unmarshal(raw, dest); jsonErr == nil {
			return nil
		}
		client.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		middleware.Logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	if err := fetch(); err != nil {
		return err
	}

	encoded, err := json.Marshal(dest)
	if err != nil {
		return nil
	}
	if err := client.Set(ctx, key, encoded, ttl).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil
}

func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID), ProfileKey(userID))
}

func InvalidateGroup(ctx context.Context, groupID uint) {
	Invalidate(ctx, GroupKey(groupID))
}
