package repository

import (
	"context"
	"time"

	"hearth/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RefreshTokenRepository is a user's refresh-token allow-list. Tokens are
// identified by their SHA-256 hex digest.
type RefreshTokenRepository interface {
	Add(ctx context.Context, userID uint, tokenHash string, expiresAt time.Time) error
	Remove(ctx context.Context, userID uint, tokenHash string) (bool, error)
	Clear(ctx context.Context, userID uint) error
	List(ctx context.Context, userID uint) ([]models.RefreshToken, error)
}

type refreshTokenRepository struct {
	db        *gorm.DB
	maxTokens int
}

// NewRefreshTokenRepository returns an allow-list that keeps at most
// maxTokens entries per user. maxTokens <= 0 means unbounded.
func NewRefreshTokenRepository(db *gorm.DB, maxTokens int) RefreshTokenRepository {
	return &refreshTokenRepository{db: db, maxTokens: maxTokens}
}

// Add stores the token and evicts the user's oldest entries beyond the bound.
func (r *refreshTokenRepository) Add(ctx context.Context, userID uint, tokenHash string, expiresAt time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.RefreshToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND expires_at < ?", userID, time.Now()).
			Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		if r.maxTokens <= 0 {
			return nil
		}

		var keep []uint
		if err := tx.Model(&models.RefreshToken{}).
			Where("user_id = ?", userID).
			Order("created_at DESC, id DESC").
			Limit(r.maxTokens).
			Pluck("id", &keep).Error; err != nil {
			return err
		}
		if len(keep) == 0 {
			return nil
		}
		return tx.Where("user_id = ? AND id NOT IN ?", userID, keep).
			Delete(&models.RefreshToken{}).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Remove deletes the token and reports whether it was on the list.
func (r *refreshTokenRepository) Remove(ctx context.Context, userID uint, tokenHash string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND token_hash = ?", userID, tokenHash).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *refreshTokenRepository) Clear(ctx context.Context, userID uint) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Delete(&models.RefreshToken{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *refreshTokenRepository) List(ctx context.Context, userID uint) ([]models.RefreshToken, error) {
	var tokens []models.RefreshToken
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&tokens).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return tokens, nil
}
