package notifications

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"hearth/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// ActiveChatTracker records which users currently have a chat open.
type ActiveChatTracker interface {
	Enter(ctx context.Context, chatID, userID uint) error
	Leave(ctx context.Context, chatID, userID uint) error
	IsActive(ctx context.Context, chatID, userID uint) (bool, error)
	ActiveUsers(ctx context.Context, chatID uint) ([]uint, error)
}

// MemoryTracker keeps active sets in process memory. Suitable for a single
// instance.
type MemoryTracker struct {
	mu    sync.RWMutex
	chats map[uint]map[uint]struct{}
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{chats: make(map[uint]map[uint]struct{})}
}

func (t *MemoryTracker) Enter(_ context.Context, chatID, userID uint) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	users, ok := t.chats[chatID]
	if !ok {
		users = make(map[uint]struct{})
		t.chats[chatID] = users
	}
	users[userID] = struct{}{}
	return nil
}

func (t *MemoryTracker) Leave(_ context.Context, chatID, userID uint) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if users, ok := t.chats[chatID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(t.chats, chatID)
		}
	}
	return nil
}

func (t *MemoryTracker) IsActive(_ context.Context, chatID, userID uint) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.chats[chatID][userID]
	return ok, nil
}

func (t *MemoryTracker) ActiveUsers(_ context.Context, chatID uint) ([]uint, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]uint, 0, len(t.chats[chatID]))
	for id := range t.chats[chatID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// RedisTracker keeps one Redis set per chat so every instance sees the same
// active users.
type RedisTracker struct {
	rdb *redis.Client
}

func NewRedisTracker(rdb *redis.Client) *RedisTracker {
	return &RedisTracker{rdb: rdb}
}

// ActiveChatKey derives the Redis key of a chat's active set.
func ActiveChatKey(chatID uint) string {
	return "chat:active:" + strconv.FormatUint(uint64(chatID), 10)
}

func (t *RedisTracker) Enter(ctx context.Context, chatID, userID uint) error {
	if err := t.rdb.SAdd(ctx, ActiveChatKey(chatID), userID).Err(); err != nil {
		middleware.RedisErrors.WithLabelValues("tracker_enter").Inc()
		return fmt.Errorf("enter chat %d: %w", chatID, err)
	}
	return nil
}

func (t *RedisTracker) Leave(ctx context.Context, chatID, userID uint) error {
	if err := t.rdb.SRem(ctx, ActiveChatKey(chatID), userID).Err(); err != nil {
		middleware.RedisErrors.WithLabelValues("tracker_leave").Inc()
		return fmt.Errorf("leave chat %d: %w", chatID, err)
	}
	return nil
}

func (t *RedisTracker) IsActive(ctx context.Context, chatID, userID uint) (bool, error) {
	ok, err := t.rdb.SIsMember(ctx, ActiveChatKey(chatID), userID).Result()
	if err != nil {
		middleware.RedisErrors.WithLabelValues("tracker_read").Inc()
		return false, fmt.Errorf("check chat %d: %w", chatID, err)
	}
	return ok, nil
}

func (t *RedisTracker) ActiveUsers(ctx context.Context, chatID uint) ([]uint, error) {
	members, err := t.rdb.SMembers(ctx, ActiveChatKey(chatID)).Result()
	if err != nil {
		middleware.RedisErrors.WithLabelValues("tracker_read").Inc()
		return nil, fmt.Errorf("list chat %d: %w", chatID, err)
	}
	out := make([]uint, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
