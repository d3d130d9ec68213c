package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatSummaryBody struct {
	ChatID      uint   `json:"chatId"`
	ChatName    string `json:"chatName"`
	UnreadCount int    `json:"unreadCount"`
	IsGroupChat bool   `json:"isGroupChat"`
	GroupName   string `json:"groupName"`
	LastMessage *struct {
		Content string `json:"content"`
	} `json:"lastMessage"`
}

type chatDetailBody struct {
	chatSummaryBody
	Participants []struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
	} `json:"participants"`
	Messages []struct {
		MessageID uint   `json:"messageId"`
		Content   string `json:"content"`
		IsRead    bool   `json:"isRead"`
		Read      []uint `json:"read"`
		Sender    struct {
			ID uint `json:"id"`
		} `json:"sender"`
	} `json:"messages"`
}

func TestOpenDirectChat(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")

	var first chatDetailBody
	env.doInto(t, http.MethodPost, fmt.Sprintf("/api/chats/direct/%d", bob.ID), alice.Token, nil, http.StatusOK, &first)
	require.NotZero(t, first.ChatID)
	assert.False(t, first.IsGroupChat)
	assert.Equal(t, "bob", first.ChatName)
	assert.Len(t, first.Participants, 2)
	assert.Empty(t, first.Messages)

	// The same pair always resolves to the same chat, from either side.
	var again chatDetailBody
	env.doInto(t, http.MethodPost, fmt.Sprintf("/api/chats/direct/%d", alice.ID), bob.Token, nil, http.StatusOK, &again)
	assert.Equal(t, first.ChatID, again.ChatID)
	assert.Equal(t, "alice", again.ChatName)

	chatPath := fmt.Sprintf("/api/chats/%d", first.ChatID)
	env.doInto(t, http.MethodGet, chatPath, bob.Token, nil, http.StatusOK, nil)
	env.expectError(t, http.MethodGet, chatPath, carol.Token, nil, http.StatusForbidden, "FORBIDDEN")
	env.expectError(t, http.MethodGet, "/api/chats/4242", carol.Token, nil, http.StatusNotFound, "NOT_FOUND")

	env.expectError(t, http.MethodPost, fmt.Sprintf("/api/chats/direct/%d", alice.ID), alice.Token, nil, http.StatusBadRequest, "VALIDATION_ERROR")
	env.expectError(t, http.MethodPost, "/api/chats/direct/4242", alice.Token, nil, http.StatusNotFound, "NOT_FOUND")
}

func TestChatListsAndMarkRead(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")
	group := env.createGroup(t, alice, "Book Club", bob.ID)

	var direct chatDetailBody
	env.doInto(t, http.MethodPost, fmt.Sprintf("/api/chats/direct/%d", bob.ID), alice.Token, nil, http.StatusOK, &direct)

	// Messages arrive through the realtime path; write them through the
	// same service the socket uses.
	ctx := t.Context()
	chat, err := env.srv.chatService.DirectChat(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = env.srv.chatService.AppendMessage(ctx, chat, alice.ID, "hi bob", []uint{alice.ID})
	require.NoError(t, err)
	_, err = env.srv.chatService.AppendMessage(ctx, chat, alice.ID, "are you there?", []uint{alice.ID})
	require.NoError(t, err)

	var chats []chatSummaryBody
	env.doInto(t, http.MethodGet, "/api/chats", bob.Token, nil, http.StatusOK, &chats)
	require.Len(t, chats, 2)
	byID := map[uint]chatSummaryBody{}
	for _, c := range chats {
		byID[c.ChatID] = c
	}
	require.Contains(t, byID, direct.ChatID)
	assert.Equal(t, 2, byID[direct.ChatID].UnreadCount)
	require.NotNil(t, byID[direct.ChatID].LastMessage)
	assert.Equal(t, "are you there?", byID[direct.ChatID].LastMessage.Content)
	require.NotNil(t, group.ChatID)
	assert.True(t, byID[*group.ChatID].IsGroupChat)
	assert.Equal(t, "Book Club", byID[*group.ChatID].GroupName)

	var unread []chatSummaryBody
	env.doInto(t, http.MethodGet, "/api/chats/messages/unread", bob.Token, nil, http.StatusOK, &unread)
	require.Len(t, unread, 1)
	assert.Equal(t, direct.ChatID, unread[0].ChatID)

	// The sender has nothing unread.
	env.doInto(t, http.MethodGet, "/api/chats/messages/unread", alice.Token, nil, http.StatusOK, &unread)
	assert.Empty(t, unread)

	readPath := fmt.Sprintf("/api/chats/%d/read", direct.ChatID)
	env.expectError(t, http.MethodPut, readPath, carol.Token, nil, http.StatusForbidden, "FORBIDDEN")

	var marked struct {
		ChatID uint  `json:"chatId"`
		Marked int64 `json:"marked"`
	}
	env.doInto(t, http.MethodPut, readPath, bob.Token, nil, http.StatusOK, &marked)
	assert.Equal(t, direct.ChatID, marked.ChatID)
	assert.Equal(t, int64(2), marked.Marked)

	env.doInto(t, http.MethodPut, readPath, bob.Token, nil, http.StatusOK, &marked)
	assert.Equal(t, int64(0), marked.Marked)

	env.doInto(t, http.MethodGet, "/api/chats/messages/unread", bob.Token, nil, http.StatusOK, &unread)
	assert.Empty(t, unread)

	var detail chatDetailBody
	env.doInto(t, http.MethodGet, fmt.Sprintf("/api/chats/%d", direct.ChatID), bob.Token, nil, http.StatusOK, &detail)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, "hi bob", detail.Messages[0].Content)
	for _, m := range detail.Messages {
		assert.True(t, m.IsRead)
		assert.ElementsMatch(t, []uint{alice.ID, bob.ID}, m.Read)
	}

	env.expectError(t, http.MethodPut, "/api/chats/4242/read", bob.Token, nil, http.StatusNotFound, "NOT_FOUND")
}
