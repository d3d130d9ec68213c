package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"hearth/internal/notifications"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wsMessage struct {
	ChatID  uint `json:"chatId"`
	Message struct {
		MessageID uint   `json:"messageId"`
		Content   string `json:"content"`
		IsRead    bool   `json:"isRead"`
		Read      []uint `json:"read"`
		Sender    struct {
			ID   uint   `json:"id"`
			Name string `json:"name"`
		} `json:"sender"`
	} `json:"message"`
}

// listen serves the app on a loopback port and returns its address.
func (e *testEnv) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = e.app.Listener(ln) }()
	t.Cleanup(func() {
		_ = e.srv.hub.Shutdown(t.Context())
		_ = e.app.Shutdown()
	})
	return ln.Addr().String()
}

func (e *testEnv) ticket(t *testing.T, s session) string {
	t.Helper()
	var out map[string]string
	e.doInto(t, http.MethodPost, "/api/ws/ticket", s.Token, nil, http.StatusOK, &out)
	require.NotEmpty(t, out["ticket"])
	return out["ticket"]
}

func dialWS(t *testing.T, addr, ticket string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/api/ws?ticket=%s", addr, ticket), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendWS(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wsFrame{Event: event, Data: raw}))
}

func readWS(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f wsFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func expectWS(t *testing.T, conn *websocket.Conn, event string, out any) {
	t.Helper()
	f := readWS(t, conn)
	require.Equal(t, event, f.Event, string(f.Data))
	if out != nil {
		require.NoError(t, json.Unmarshal(f.Data, out))
	}
}

// expectSilence asserts nothing arrives for a short while. It leaves the
// connection unusable for further reads.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var f wsFrame
	err := conn.ReadJSON(&f)
	require.Error(t, err, "unexpected frame %s %s", f.Event, f.Data)
	var netErr net.Error
	assert.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected timeout, got %v", err)
}

func connectWS(t *testing.T, e *testEnv, addr string, s session) *websocket.Conn {
	t.Helper()
	conn := dialWS(t, addr, e.ticket(t, s))
	sendWS(t, conn, notifications.EventUserConnect, map[string]uint{"userId": s.ID})
	var ack struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	expectWS(t, conn, notifications.EventUserConnected, &ack)
	require.True(t, ack.Success, ack.Error)
	return conn
}

func TestIssueWSTicket(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")

	ticket := env.ticket(t, alice)
	assert.True(t, env.mr.Exists("ws_ticket:"+ticket))
	assert.Greater(t, env.mr.TTL("ws_ticket:"+ticket), time.Duration(0))

	env.expectError(t, http.MethodPost, "/api/ws/ticket", "", nil, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")

	resp, _ := env.do(t, http.MethodGet, "/api/ws", alice.Token, nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestWebSocket_TicketIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	addr := env.listen(t)
	alice := env.register(t, "alice")

	ticket := env.ticket(t, alice)
	dialWS(t, addr, ticket)
	assert.False(t, env.mr.Exists("ws_ticket:"+ticket))

	_, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/api/ws?ticket=%s", addr, ticket), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_PrivateMessageFlow(t *testing.T) {
	env := newTestEnv(t)
	addr := env.listen(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	aliceWS := connectWS(t, env, addr, alice)
	bobWS := connectWS(t, env, addr, bob)

	// Bob has not opened the chat: he gets the message and an unread notice.
	sendWS(t, aliceWS, notifications.EventPrivateMessage, map[string]any{
		"content": "hi bob", "to": bob.ID, "from": alice.ID, "senderName": "Alice",
	})
	var first wsMessage
	expectWS(t, bobWS, notifications.EventNewMessage, &first)
	assert.Equal(t, "hi bob", first.Message.Content)
	assert.Equal(t, alice.ID, first.Message.Sender.ID)
	assert.False(t, first.Message.IsRead)
	assert.Equal(t, []uint{alice.ID}, first.Message.Read)

	var unread struct {
		ChatID     uint   `json:"chatId"`
		From       uint   `json:"from"`
		SenderName string `json:"senderName"`
	}
	expectWS(t, bobWS, notifications.EventUnreadMessage, &unread)
	assert.Equal(t, first.ChatID, unread.ChatID)
	assert.Equal(t, alice.ID, unread.From)
	assert.Equal(t, "Alice", unread.SenderName)

	var unreadChats []chatSummaryBody
	env.doInto(t, http.MethodGet, "/api/chats/messages/unread", bob.Token, nil, http.StatusOK, &unreadChats)
	require.Len(t, unreadChats, 1)
	assert.Equal(t, 1, unreadChats[0].UnreadCount)

	// Entering the chat marks its history read and makes bob active.
	sendWS(t, bobWS, notifications.EventEnterChat, map[string]uint{"userId": bob.ID, "chatId": first.ChatID})
	require.Eventually(t, func() bool {
		members, err := env.mr.Members(notifications.ActiveChatKey(first.ChatID))
		return err == nil && len(members) == 1
	}, 2*time.Second, 20*time.Millisecond)

	env.doInto(t, http.MethodGet, "/api/chats/messages/unread", bob.Token, nil, http.StatusOK, &unreadChats)
	assert.Empty(t, unreadChats)

	sendWS(t, aliceWS, notifications.EventPrivateMessage, map[string]any{
		"content": "you are here", "to": bob.ID,
	})
	var second wsMessage
	expectWS(t, bobWS, notifications.EventNewMessage, &second)
	assert.Equal(t, first.ChatID, second.ChatID)
	assert.True(t, second.Message.IsRead)
	assert.ElementsMatch(t, []uint{alice.ID, bob.ID}, second.Message.Read)
	expectSilence(t, bobWS)

	// The sender never receives an echo.
	expectSilence(t, aliceWS)
}

func TestWebSocket_GroupMessageFlow(t *testing.T) {
	env := newTestEnv(t)
	addr := env.listen(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")
	group := env.createGroup(t, alice, "Hikers", bob.ID)

	aliceWS := connectWS(t, env, addr, alice)
	bobWS := connectWS(t, env, addr, bob)
	carolWS := connectWS(t, env, addr, carol)

	sendWS(t, bobWS, notifications.EventGroupMessage, map[string]any{
		"content": "trail at 9?", "groupId": group.ID, "from": bob.ID,
	})

	var msg wsMessage
	expectWS(t, aliceWS, notifications.EventNewMessage, &msg)
	require.NotNil(t, group.ChatID)
	assert.Equal(t, *group.ChatID, msg.ChatID)
	assert.Equal(t, "trail at 9?", msg.Message.Content)
	expectWS(t, aliceWS, notifications.EventUnreadMessage, nil)

	// Non-members are not in the group room and cannot post to it.
	sendWS(t, carolWS, notifications.EventGroupMessage, map[string]any{
		"content": "let me in", "groupId": group.ID,
	})
	var wsErr notifications.ErrorPayload
	expectWS(t, carolWS, notifications.EventError, &wsErr)
	assert.Equal(t, notifications.CodeForbidden, wsErr.Code)

	expectSilence(t, bobWS)
}

func TestWebSocket_ProtocolErrors(t *testing.T) {
	env := newTestEnv(t)
	addr := env.listen(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	conn := dialWS(t, addr, env.ticket(t, alice))

	// Messages before user:connect are refused.
	sendWS(t, conn, notifications.EventPrivateMessage, map[string]any{"content": "x", "to": bob.ID})
	var wsErr notifications.ErrorPayload
	expectWS(t, conn, notifications.EventError, &wsErr)
	assert.Equal(t, notifications.CodeNotIdentified, wsErr.Code)

	// Claiming another user's id fails the handshake.
	sendWS(t, conn, notifications.EventUserConnect, map[string]uint{"userId": bob.ID})
	var ack struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	expectWS(t, conn, notifications.EventUserConnected, &ack)
	assert.False(t, ack.Success)

	sendWS(t, conn, notifications.EventUserConnect, map[string]uint{"userId": alice.ID})
	expectWS(t, conn, notifications.EventUserConnected, &ack)
	require.True(t, ack.Success)

	sendWS(t, conn, notifications.EventPrivateMessage, map[string]any{"content": "x", "to": bob.ID, "from": bob.ID})
	expectWS(t, conn, notifications.EventError, &wsErr)
	assert.Equal(t, notifications.CodeIdentity, wsErr.Code)

	sendWS(t, conn, notifications.EventPrivateMessage, map[string]any{"content": "x", "to": alice.ID})
	expectWS(t, conn, notifications.EventError, &wsErr)
	assert.Equal(t, notifications.CodeBadRequest, wsErr.Code)

	sendWS(t, conn, "dance", map[string]any{})
	expectWS(t, conn, notifications.EventError, &wsErr)
	assert.Equal(t, notifications.CodeUnknownEvent, wsErr.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	expectWS(t, conn, notifications.EventError, &wsErr)
	assert.Equal(t, notifications.CodeBadRequest, wsErr.Code)
}
