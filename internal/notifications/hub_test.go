package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

// nextFrame reads one queued frame from the client or fails.
func nextFrame(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	case <-time.After(testEventuallyTimeout):
		t.Fatal("timed out waiting for frame")
		return Envelope{}
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected frame: %s", raw)
	case <-time.After(5 * testPollInterval):
	}
}

func TestRoomNames(t *testing.T) {
	assert.Equal(t, "42", UserRoom(42))
	assert.Equal(t, "group:7", GroupRoom(7))
	assert.Equal(t, "rooms:group:7", RoomChannel(GroupRoom(7)))
}

func TestRoomHub_RegisterAndUnregister(t *testing.T) {
	hub := NewRoomHub(nil)

	a, err := hub.Register(1, nil)
	require.NoError(t, err)
	b, err := hub.Register(1, nil)
	require.NoError(t, err)
	assert.True(t, hub.IsConnected(1))

	hub.Join(a, UserRoom(1))
	hub.Join(b, UserRoom(1))
	hub.Join(a, GroupRoom(3))
	assert.Equal(t, 2, hub.RoomSize(UserRoom(1)))

	hub.UnregisterClient(a)
	assert.Equal(t, 1, hub.RoomSize(UserRoom(1)))
	assert.Equal(t, 0, hub.RoomSize(GroupRoom(3)))
	assert.True(t, hub.IsConnected(1))

	_, ok := <-a.Send
	assert.False(t, ok, "send channel should be closed")

	// A second unregister is a no-op.
	hub.UnregisterClient(a)

	hub.UnregisterClient(b)
	assert.False(t, hub.IsConnected(1))
	assert.Equal(t, 0, hub.RoomSize(UserRoom(1)))
}

func TestRoomHub_ShutdownClosesThroughWritePump(t *testing.T) {
	hub := NewRoomHub(nil)
	a, err := hub.Register(1, nil)
	require.NoError(t, err)
	b, err := hub.Register(2, nil)
	require.NoError(t, err)
	hub.Join(a, GroupRoom(5))
	hub.Join(b, GroupRoom(5))

	require.NoError(t, hub.Shutdown(context.Background()))

	goingAway := websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")
	for _, c := range []*Client{a, b} {
		_, ok := <-c.Send
		assert.False(t, ok, "send channel should be closed")
		assert.Equal(t, goingAway, c.closeFrame)
	}
	assert.False(t, hub.IsConnected(1))
	assert.False(t, hub.IsConnected(2))
	assert.Equal(t, 0, hub.RoomSize(GroupRoom(5)))

	// The read pump unregistering afterwards changes nothing.
	hub.UnregisterClient(a)
	assert.Equal(t, goingAway, a.closeFrame)
}

func TestRoomHub_PerUserLimit(t *testing.T) {
	hub := NewRoomHub(nil)
	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register(9, nil)
		require.NoError(t, err)
	}
	_, err := hub.Register(9, nil)
	assert.ErrorIs(t, err, ErrUserConnLimit)

	_, err = hub.Register(10, nil)
	assert.NoError(t, err)
}

func TestRoomHub_JoinIgnoresUnregisteredClient(t *testing.T) {
	hub := NewRoomHub(nil)
	c, err := hub.Register(2, nil)
	require.NoError(t, err)
	hub.UnregisterClient(c)

	hub.Join(c, GroupRoom(1))
	assert.Equal(t, 0, hub.RoomSize(GroupRoom(1)))
}

func TestRoomHub_EmitSkipsExceptedClient(t *testing.T) {
	hub := NewRoomHub(nil)
	sender, _ := hub.Register(1, nil)
	other, _ := hub.Register(2, nil)
	outsider, _ := hub.Register(3, nil)
	hub.Join(sender, GroupRoom(5))
	hub.Join(other, GroupRoom(5))

	err := hub.Emit(context.Background(), GroupRoom(5), EventNewMessage, map[string]int{"chatId": 1}, sender)
	require.NoError(t, err)

	env := nextFrame(t, other)
	assert.Equal(t, EventNewMessage, env.Event)
	assert.JSONEq(t, `{"chatId":1}`, string(env.Data))
	assertNoFrame(t, sender)
	assertNoFrame(t, outsider)
}

func TestRoomHub_LeaveStopsDelivery(t *testing.T) {
	hub := NewRoomHub(nil)
	c, _ := hub.Register(1, nil)
	hub.Join(c, GroupRoom(2))
	hub.Leave(c, GroupRoom(2))

	require.NoError(t, hub.Emit(context.Background(), GroupRoom(2), EventNewMessage, struct{}{}, nil))
	assertNoFrame(t, c)
}

func TestClient_TrySendDropsWhenFullOrClosed(t *testing.T) {
	hub := NewRoomHub(nil)
	c, _ := hub.Register(1, nil)
	for i := 0; i < sendBufferSize; i++ {
		c.TrySend([]byte("x"))
	}
	// Buffer is full; this must not block.
	c.TrySend([]byte("dropped"))
	assert.Len(t, c.Send, sendBufferSize)

	hub.UnregisterClient(c)
	assert.NotPanics(t, func() { c.TrySend([]byte("late")) })
}

func TestRoomHub_RelayAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubA := NewRoomHub(newClient())
	hubB := NewRoomHub(newClient())
	require.NotEqual(t, hubA.InstanceID(), hubB.InstanceID())
	require.NoError(t, hubA.StartRelay(ctx))
	require.NoError(t, hubB.StartRelay(ctx))

	onA, _ := hubA.Register(1, nil)
	onB, _ := hubB.Register(2, nil)
	hubA.Join(onA, UserRoom(1))
	hubB.Join(onB, UserRoom(2))

	require.NoError(t, hubA.Emit(ctx, UserRoom(2), EventUnreadMessage, UnreadMessagePayload{ChatID: 4, From: 1}, nil))

	env := nextFrame(t, onB)
	assert.Equal(t, EventUnreadMessage, env.Event)
	var got UnreadMessagePayload
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, uint(4), got.ChatID)
	assert.Equal(t, uint(1), got.From)

	// A local emit is delivered once even though the relay echoes it back.
	require.NoError(t, hubA.Emit(ctx, UserRoom(1), EventNewMessage, struct{}{}, nil))
	assert.Equal(t, EventNewMessage, nextFrame(t, onA).Event)
	assertNoFrame(t, onA)
}

func TestRoomHub_RelayIgnoresMalformedPayloads(t *testing.T) {
	hub := NewRoomHub(nil)
	c, _ := hub.Register(1, nil)
	hub.Join(c, UserRoom(1))

	hub.relay("rooms:1", "not json")
	hub.relay("other:1", `{"origin":"x","frame":{}}`)
	assertNoFrame(t, c)

	hub.relay("rooms:1", `{"origin":"elsewhere","frame":{"event":"new message","data":{}}}`)
	assert.Equal(t, EventNewMessage, nextFrame(t, c).Event)
}
