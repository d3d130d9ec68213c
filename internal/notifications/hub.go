// Package notifications provides real-time chat delivery over websockets.
package notifications

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"hearth/internal/middleware"
	"hearth/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

var (
	ErrTotalConnLimit = errors.New("server connection limit reached")
	ErrUserConnLimit  = errors.New("user connection limit reached")
)

// UserRoom is the personal room every identified connection of a user joins.
func UserRoom(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}

// GroupRoom is the room shared by the members of a group.
func GroupRoom(groupID uint) string {
	return "group:" + strconv.FormatUint(uint64(groupID), 10)
}

// RoomHub tracks connections and named rooms. Emits reach local sockets
// directly and other instances through the Redis relay.
type RoomHub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	clientRoom map[*Client]map[string]struct{}
	totalConns int

	rdb        *redis.Client
	instanceID string
	log        *observability.WSLogger
}

// NewRoomHub creates a hub. A nil Redis client keeps delivery local.
func NewRoomHub(rdb *redis.Client) *RoomHub {
	return &RoomHub{
		conns:      make(map[uint]map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		clientRoom: make(map[*Client]map[string]struct{}),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		log:        observability.NewWSLogger("chat"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *RoomHub) Name() string { return "chat hub" }

// InstanceID identifies this process on the relay channel.
func (h *RoomHub) InstanceID() string { return h.instanceID }

// Register adds a connection for userID. It fails once the per-user or
// total connection limit is reached.
func (h *RoomHub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.totalConns >= maxTotalConns {
		return nil, ErrTotalConnLimit
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		return nil, ErrUserConnLimit
	}

	client := NewClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++
	middleware.ActiveWebSockets.Inc()
	return client, nil
}

// UnregisterClient removes the client from every room and closes its send
// channel. Safe to call more than once.
func (h *RoomHub) UnregisterClient(client *Client) {
	h.unregister(client, nil)
}

// unregister drops the client from every room and closes its Send channel.
// WritePump then writes closeFrame, or a normal closure when nil, as the
// connection's only writer.
func (h *RoomHub) unregister(client *Client, closeFrame []byte) {
	h.mu.Lock()
	m, ok := h.conns[client.UserID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := m[client]; !exists {
		h.mu.Unlock()
		return
	}
	delete(m, client)
	if len(m) == 0 {
		delete(h.conns, client.UserID)
	}
	for room := range h.clientRoom[client] {
		h.leaveLocked(client, room)
	}
	delete(h.clientRoom, client)
	h.totalConns--
	client.closeFrame = closeFrame
	close(client.Send)
	h.mu.Unlock()

	middleware.ActiveWebSockets.Dec()
	h.log.LogDisconnect(context.Background(), client.UserID, "closed")
}

// Join adds the client to room.
func (h *RoomHub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[client.UserID][client]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[client] = struct{}{}

	joined, ok := h.clientRoom[client]
	if !ok {
		joined = make(map[string]struct{})
		h.clientRoom[client] = joined
	}
	joined[room] = struct{}{}
}

// Leave removes the client from room.
func (h *RoomHub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, room)
	delete(h.clientRoom[client], room)
}

func (h *RoomHub) leaveLocked(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// IsConnected reports whether userID has a connection on this instance.
func (h *RoomHub) IsConnected(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// RoomSize returns the number of local connections in room.
func (h *RoomHub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Emit sends an event to every connection in room except the given client,
// locally and on the other instances.
func (h *RoomHub) Emit(ctx context.Context, room, event string, data any, except *Client) error {
	frame, err := Encode(event, data)
	if err != nil {
		return err
	}
	h.deliver(room, frame, except)
	return h.publish(ctx, room, frame)
}

// deliver writes frame to the local members of room.
func (h *RoomHub) deliver(room string, frame []byte, except *Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c == except {
			continue
		}
		c.TrySend(frame)
	}
}

// SendTo writes an event to a single client.
func (h *RoomHub) SendTo(client *Client, event string, data any) {
	frame, err := Encode(event, data)
	if err != nil {
		observability.Logger().Error("encode frame failed", slog.String("event", event), slog.String("error", err.Error()))
		return
	}
	client.TrySend(frame)
}

// Shutdown closes every connection.
func (h *RoomHub) Shutdown(_ context.Context) error {
	h.mu.RLock()
	var clients []*Client
	for _, set := range h.conns {
		for client := range set {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	goingAway := websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")
	for _, client := range clients {
		h.unregister(client, goingAway)
	}
	return nil
}
