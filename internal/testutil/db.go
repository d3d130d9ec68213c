// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"hearth/internal/database"
	"hearth/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens an in-memory SQLite database with the full schema
// applied. The pool is pinned to one connection so every query sees the
// same memory database; code under test must use the transaction handle
// inside Transaction callbacks.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.ApplySchema(context.Background(), db))
	return db
}

// CreateUser inserts a user with fake profile data and the given username.
func CreateUser(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{
		Username: username,
		Email:    fmt.Sprintf("%s@%s", username, gofakeit.DomainName()),
		Name:     gofakeit.Name(),
		Bio:      gofakeit.Sentence(6),
	}
	require.NoError(t, db.Omit("Following", "Groups").Create(u).Error)
	return u
}

// CreateGroup inserts a group owned by creator with the given extra members.
func CreateGroup(t testing.TB, db *gorm.DB, name string, creator *models.User, members ...*models.User) *models.Group {
	t.Helper()
	g := &models.Group{Name: name, CreatorID: creator.ID}
	require.NoError(t, db.Omit("Creator", "Admins", "Members").Create(g).Error)
	require.NoError(t, db.Exec("INSERT INTO group_admins (group_id, user_id) VALUES (?, ?)", g.ID, creator.ID).Error)
	for _, m := range append([]*models.User{creator}, members...) {
		require.NoError(t, db.Exec("INSERT INTO group_members (group_id, user_id) VALUES (?, ?)", g.ID, m.ID).Error)
	}
	return g
}

// Follow makes follower follow followee.
func Follow(t testing.TB, db *gorm.DB, follower, followee *models.User) {
	t.Helper()
	require.NoError(t, db.Create(&models.UserFollow{FollowerID: follower.ID, FolloweeID: followee.ID}).Error)
}
