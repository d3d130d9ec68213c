package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"hearth/internal/middleware"
	"hearth/internal/observability"
)

const relayChannelPrefix = "rooms:"

// RoomChannel derives the Redis channel that carries emits for a room.
func RoomChannel(room string) string {
	return relayChannelPrefix + room
}

// relayFrame is what travels between instances. Origin lets an instance
// skip its own publishes, which it already delivered locally.
type relayFrame struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

func (h *RoomHub) publish(ctx context.Context, room string, frame []byte) error {
	if h.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(relayFrame{Origin: h.instanceID, Frame: frame})
	if err != nil {
		return fmt.Errorf("marshal relay frame: %w", err)
	}
	if err := h.rdb.Publish(ctx, RoomChannel(room), payload).Err(); err != nil {
		middleware.RedisErrors.WithLabelValues("room_publish").Inc()
		return fmt.Errorf("publish to %s: %w", room, err)
	}
	return nil
}

// StartRelay subscribes to every room channel and delivers frames published
// by other instances to local members. It returns once the subscription is
// confirmed; delivery stops when ctx is cancelled.
func (h *RoomHub) StartRelay(ctx context.Context) error {
	if h.rdb == nil {
		return nil
	}
	sub := h.rdb.PSubscribe(ctx, relayChannelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe to room relay: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.Logger().Error("panic in room relay",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					h.relay(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

func (h *RoomHub) relay(channel, payload string) {
	room, ok := strings.CutPrefix(channel, relayChannelPrefix)
	if !ok || room == "" {
		observability.Logger().Warn("invalid room channel", slog.String("channel", channel))
		return
	}
	var rf relayFrame
	if err := json.Unmarshal([]byte(payload), &rf); err != nil {
		observability.Logger().Warn("invalid relay frame",
			slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	if rf.Origin == h.instanceID {
		return
	}
	h.deliver(room, rf.Frame, nil)
}
