package repository

import (
	"context"
	"sync"
	"testing"

	"hearth/internal/models"
	"hearth/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRepository_DirectChatIsUniquePerPair(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()
	a := testutil.CreateUser(t, db, "anna")
	b := testutil.CreateUser(t, db, "ben")

	none, err := repo.FindDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	first, err := repo.CreateDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, first.IsGroupChat)
	assert.Nil(t, first.GroupID)
	assert.ElementsMatch(t, []uint{a.ID, b.ID}, first.ParticipantIDs())

	second, err := repo.CreateDirect(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	found, err := repo.FindDirect(ctx, b.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)

	var n int64
	require.NoError(t, db.Model(&models.Chat{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestChatRepository_ConcurrentCreateDirect(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewChatRepository(db)
	a := testutil.CreateUser(t, db, "cara")
	b := testutil.CreateUser(t, db, "dan")

	var wg sync.WaitGroup
	ids := make([]uint, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chat, err := repo.CreateDirect(context.Background(), a.ID, b.ID)
			if assert.NoError(t, err) {
				ids[i] = chat.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestChatRepository_AppendAndMarkRead(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()
	a := testutil.CreateUser(t, db, "eve")
	b := testutil.CreateUser(t, db, "finn")

	chat, err := repo.CreateDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)

	m1 := &models.Message{SenderID: a.ID, Content: "hi"}
	require.NoError(t, repo.AppendMessage(ctx, chat.ID, m1, nil))
	assert.NotZero(t, m1.ID)
	assert.False(t, m1.CreatedAt.IsZero())
	assert.Equal(t, []uint{a.ID}, m1.ReadBy())
	require.NotNil(t, m1.Sender)
	assert.Equal(t, "eve", m1.Sender.Username)

	m2 := &models.Message{SenderID: a.ID, Content: "you there?"}
	require.NoError(t, repo.AppendMessage(ctx, chat.ID, m2, []uint{a.ID}))

	reply := &models.Message{SenderID: b.ID, Content: "yes"}
	require.NoError(t, repo.AppendMessage(ctx, chat.ID, reply, []uint{a.ID}))
	assert.ElementsMatch(t, []uint{a.ID, b.ID}, reply.ReadBy())

	loaded, err := repo.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 3)
	require.NotNil(t, loaded.LastMessage)
	assert.Equal(t, reply.ID, loaded.LastMessage.ID)

	changed, err := repo.MarkChatRead(ctx, chat.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	again, err := repo.MarkChatRead(ctx, chat.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), again)

	loaded, err = repo.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	for _, m := range loaded.Messages {
		assert.True(t, m.IsReadBy(b.ID), "message %d unread", m.ID)
		assert.True(t, m.IsReadBy(m.SenderID))
	}
}

func TestChatRepository_GroupChatLifecycle(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "gina")
	member := testutil.CreateUser(t, db, "hank")
	group := testutil.CreateGroup(t, db, "Climbers", owner)

	chat, err := repo.CreateGroupChat(ctx, group, []uint{owner.ID})
	require.NoError(t, err)
	assert.True(t, chat.IsGroupChat)
	require.NotNil(t, chat.GroupID)
	assert.Equal(t, group.ID, *chat.GroupID)
	assert.Equal(t, "Climbers", chat.GroupName)

	require.NoError(t, repo.AddParticipant(ctx, chat.ID, member.ID))
	require.NoError(t, repo.AddParticipant(ctx, chat.ID, member.ID))
	ok, err := repo.IsParticipant(ctx, chat.ID, member.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	chats, err := repo.ListForUser(ctx, member.ID)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, chat.ID, chats[0].ID)

	require.NoError(t, repo.RemoveParticipant(ctx, chat.ID, member.ID))
	ok, err = repo.IsParticipant(ctx, chat.ID, member.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.AppendMessage(ctx, chat.ID, &models.Message{SenderID: owner.ID, Content: "welcome"}, nil))
	require.NoError(t, repo.DeleteChat(ctx, chat.ID))

	_, err = repo.GetByID(ctx, chat.ID)
	assert.True(t, models.IsNotFound(err))
	found, err := repo.FindByGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}
