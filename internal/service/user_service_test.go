package service

import (
	"context"
	"strings"
	"testing"

	"hearth/internal/models"
	"hearth/internal/repository"
	"hearth/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newUserFixture(t *testing.T) (*gorm.DB, *UserService, *testutil.PublisherMock) {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	pub := testutil.NewPermissivePublisher()
	svc := NewUserService(
		repository.NewUserRepository(db),
		repository.NewFollowRepository(db),
		repository.NewGroupRepository(db),
		repository.NewPostRepository(db),
		pub,
	)
	return db, svc, pub
}

func TestUserService_ToggleFollow(t *testing.T) {
	db, svc, pub := newUserFixture(t)
	ctx := context.Background()
	ann := testutil.CreateUser(t, db, "ann")
	ben := testutil.CreateUser(t, db, "ben")

	following, err := svc.ToggleFollow(ctx, ann.ID, ben.ID)
	require.NoError(t, err)
	assert.True(t, following)
	pub.AssertCalled(t, "Publish", mock.Anything, "user.followed", mock.Anything)

	profile, err := svc.GetProfile(ctx, ben.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), profile.FollowersCount)
	assert.Zero(t, profile.FollowingCount)

	following, err = svc.ToggleFollow(ctx, ann.ID, ben.ID)
	require.NoError(t, err)
	assert.False(t, following)

	t.Run("self", func(t *testing.T) {
		_, err := svc.ToggleFollow(ctx, ann.ID, ann.ID)
		assertValidationError(t, err)
	})

	t.Run("missing target", func(t *testing.T) {
		_, err := svc.ToggleFollow(ctx, ann.ID, 777)
		assertNotFoundError(t, err)
	})
}

func TestUserService_UpdateMe(t *testing.T) {
	db, svc, _ := newUserFixture(t)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{Username: "cara", Email: "cara@example.com", Password: string(hash), Name: "Cara"}
	require.NoError(t, db.Create(user).Error)

	updated, err := svc.UpdateMe(ctx, UpdateProfileInput{UserID: user.ID, Bio: "knits"})
	require.NoError(t, err)
	assert.Equal(t, "knits", updated.Bio)
	assert.Equal(t, "Cara", updated.Name)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.Equal(t, "knits", stored.Bio)
	assert.Equal(t, string(hash), stored.Password, "profile updates never touch the password hash")

	_, err = svc.UpdateMe(ctx, UpdateProfileInput{UserID: user.ID, Bio: strings.Repeat("b", 501)})
	assertValidationError(t, err)
}

func TestUserService_Search(t *testing.T) {
	db, svc, _ := newUserFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "gardener")
	testutil.CreateUser(t, db, "baker")
	testutil.CreateGroup(t, db, "Garden Club", owner)
	require.NoError(t, repository.NewPostRepository(db).Create(ctx,
		&models.Post{UserID: owner.ID, Content: "My GARDEN is blooming"}))

	res, err := svc.Search(ctx, "garden", owner.ID)
	require.NoError(t, err)
	require.Len(t, res.Users, 1)
	assert.Equal(t, "gardener", res.Users[0].Username)
	require.Len(t, res.Groups, 1)
	require.Len(t, res.Posts, 1)

	empty, err := svc.Search(ctx, "zzz", owner.ID)
	require.NoError(t, err)
	assert.NotNil(t, empty.Users)
	assert.NotNil(t, empty.Groups)
	assert.NotNil(t, empty.Posts)

	_, err = svc.Search(ctx, "  ", owner.ID)
	assertValidationError(t, err)
}
