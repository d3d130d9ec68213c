package database

import (
	"context"
	"testing"

	"hearth/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestApplySchema_CreatesTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: NewGormLogger(logger.Silent)})
	require.NoError(t, err)

	require.NoError(t, ApplySchema(context.Background(), db))

	for _, table := range []string{
		"users", "user_follows", "refresh_tokens", "groups", "group_members",
		"group_admins", "posts", "likes", "comments", "chats",
		"chat_participants", "messages", "message_reads",
	} {
		assert.True(t, db.Migrator().HasTable(table), "missing table %s", table)
	}
}

func TestConfigurePool(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, configurePool(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 25, sqlDB.Stats().MaxOpenConnections)
}

func TestPersistentModels_IncludesReadTracking(t *testing.T) {
	found := false
	for _, model := range PersistentModels() {
		if _, ok := model.(*models.MessageRead); ok {
			found = true
			break
		}
	}
	require.True(t, found, "PersistentModels should include MessageRead")
}

func TestPostgresDSN_DefaultsSSLMode(t *testing.T) {
	dsn := postgresDSN("db", "5432", "u", "p", "hearth", "")
	assert.Contains(t, dsn, "sslmode=disable")
	assert.Contains(t, dsn, "dbname=hearth")
}
