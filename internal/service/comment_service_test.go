package service

import (
	"context"
	"testing"

	"hearth/internal/models"
	"hearth/internal/repository"
	"hearth/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentService_Lifecycle(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()
	posts := repository.NewPostRepository(db)
	svc := NewCommentService(repository.NewCommentRepository(db), posts)

	author := testutil.CreateUser(t, db, "author")
	reader := testutil.CreateUser(t, db, "reader")
	post := &models.Post{UserID: author.ID, Content: "discuss"}
	require.NoError(t, posts.Create(ctx, post))

	c, err := svc.CreateComment(ctx, CreateCommentInput{PostID: post.ID, UserID: reader.ID, Content: "first"})
	require.NoError(t, err)
	assert.Equal(t, "reader", c.User.Username)

	list, err := svc.ListComments(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	t.Run("missing post", func(t *testing.T) {
		_, err := svc.CreateComment(ctx, CreateCommentInput{PostID: 4040, UserID: reader.ID, Content: "hi"})
		assertNotFoundError(t, err)
		_, err = svc.ListComments(ctx, 4040)
		assertNotFoundError(t, err)
	})

	t.Run("blank content", func(t *testing.T) {
		_, err := svc.CreateComment(ctx, CreateCommentInput{PostID: post.ID, UserID: reader.ID, Content: ""})
		assertValidationError(t, err)
	})

	t.Run("only the author deletes", func(t *testing.T) {
		assertForbiddenError(t, svc.DeleteComment(ctx, c.ID, author.ID))
		require.NoError(t, svc.DeleteComment(ctx, c.ID, reader.ID))
		assertNotFoundError(t, svc.CheckOwner(ctx, c.ID, reader.ID))
	})
}
