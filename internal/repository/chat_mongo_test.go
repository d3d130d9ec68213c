package repository

import (
	"context"
	"testing"
	"time"

	"hearth/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

type usersStub struct {
	UserRepository
	users map[uint]models.User
}

func (s *usersStub) GetByIDs(_ context.Context, ids []uint) ([]models.User, error) {
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *usersStub) GetByID(_ context.Context, id uint) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return &u, nil
	}
	return nil, models.NewNotFoundError("User", id)
}

func newUsersStub() *usersStub {
	return &usersStub{users: map[uint]models.User{
		1: {ID: 1, Username: "ann", Name: "Ann"},
		2: {ID: 2, Username: "bo"},
	}}
}

func chatDoc(id uint, messages ...bson.D) bson.D {
	msgs := bson.A{}
	for _, m := range messages {
		msgs = append(msgs, m)
	}
	return bson.D{
		{Key: "_id", Value: int64(id)},
		{Key: "isGroupChat", Value: false},
		{Key: "directKey", Value: "1:2"},
		{Key: "participants", Value: bson.A{int64(1), int64(2)}},
		{Key: "messages", Value: msgs},
		{Key: "createdAt", Value: time.Now()},
		{Key: "updatedAt", Value: time.Now()},
	}
}

func msgDoc(id, sender uint, read ...uint) bson.D {
	readers := bson.A{}
	for _, r := range read {
		readers = append(readers, int64(r))
	}
	return bson.D{
		{Key: "_id", Value: int64(id)},
		{Key: "sender", Value: int64(sender)},
		{Key: "content", Value: "hello"},
		{Key: "createdAt", Value: time.Now()},
		{Key: "read", Value: readers},
	}
}

func TestMongoChatRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("FindDirect returns nil when missing", func(mt *mtest.T) {
		repo := NewMongoChatRepository(mt.DB, newUsersStub())
		ns := mt.DB.Name() + "." + chatsCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		chat, err := repo.FindDirect(context.Background(), 2, 1)
		require.NoError(mt, err)
		assert.Nil(mt, chat)
	})

	mt.Run("GetByID hydrates participants and senders", func(mt *mtest.T) {
		repo := NewMongoChatRepository(mt.DB, newUsersStub())
		ns := mt.DB.Name() + "." + chatsCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			chatDoc(7, msgDoc(10, 1, 1), msgDoc(11, 2, 2, 1))))

		chat, err := repo.GetByID(context.Background(), 7)
		require.NoError(mt, err)
		assert.Equal(mt, uint(7), chat.ID)
		assert.ElementsMatch(mt, []uint{1, 2}, chat.ParticipantIDs())
		require.Len(mt, chat.Messages, 2)
		require.NotNil(mt, chat.Messages[0].Sender)
		assert.Equal(mt, "Ann", chat.Messages[0].Sender.DisplayName())
		assert.True(mt, chat.Messages[1].IsReadBy(1))
		require.NotNil(mt, chat.LastMessage)
		assert.Equal(mt, uint(11), chat.LastMessage.ID)
	})

	mt.Run("GetByID missing is NotFound", func(mt *mtest.T) {
		repo := NewMongoChatRepository(mt.DB, newUsersStub())
		ns := mt.DB.Name() + "." + chatsCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := repo.GetByID(context.Background(), 99)
		assert.True(mt, models.IsNotFound(err))
	})

	mt.Run("MarkChatRead counts pending messages", func(mt *mtest.T) {
		repo := NewMongoChatRepository(mt.DB, newUsersStub())
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: chatDoc(7, msgDoc(10, 1, 1), msgDoc(11, 1, 1), msgDoc(12, 2, 2))},
		})

		n, err := repo.MarkChatRead(context.Background(), 7, 2)
		require.NoError(mt, err)
		assert.Equal(mt, int64(2), n)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "findAndModify", started.CommandName)
	})

	mt.Run("MarkChatRead is zero when everything is read", func(mt *mtest.T) {
		repo := NewMongoChatRepository(mt.DB, newUsersStub())
		// No chat matches the unread filter, so findAndModify returns null.
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: nil}})

		n, err := repo.MarkChatRead(context.Background(), 7, 2)
		require.NoError(mt, err)
		assert.Zero(mt, n)
	})

	mt.Run("CreateDirect returns the existing chat on duplicate key", func(mt *mtest.T) {
		repo := NewMongoChatRepository(mt.DB, newUsersStub())
		ns := mt.DB.Name() + "." + chatsCollection
		mt.AddMockResponses(
			bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: bson.D{{Key: "_id", Value: "chats"}, {Key: "seq", Value: int64(8)}}}},
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key error"}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, chatDoc(7)),
		)

		chat, err := repo.CreateDirect(context.Background(), 1, 2)
		require.NoError(mt, err)
		assert.Equal(mt, uint(7), chat.ID)
	})

	mt.Run("AppendMessage on a missing chat is NotFound", func(mt *mtest.T) {
		repo := NewMongoChatRepository(mt.DB, newUsersStub())
		mt.AddMockResponses(
			bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: bson.D{{Key: "_id", Value: "messages"}, {Key: "seq", Value: int64(3)}}}},
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
		)

		err := repo.AppendMessage(context.Background(), 42, &models.Message{SenderID: 1, Content: "hi"}, nil)
		assert.True(mt, models.IsNotFound(err))
	})
}
