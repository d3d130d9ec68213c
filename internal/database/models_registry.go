package database

import "hearth/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.UserFollow{},
		&models.RefreshToken{},
		&models.Group{},
		&models.Post{},
		&models.Like{},
		&models.Comment{},
		&models.Chat{},
		&models.Message{},
		&models.MessageRead{},
	}
}
