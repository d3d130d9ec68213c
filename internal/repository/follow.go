package repository

import (
	"context"

	"hearth/internal/cache"
	"hearth/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowRepository manages the directed follow graph between users.
type FollowRepository interface {
	IsFollowing(ctx context.Context, followerID, followeeID uint) (bool, error)
	Toggle(ctx context.Context, followerID, followeeID uint) (following bool, err error)
	Counts(ctx context.Context, userID uint) (followers, following int64, err error)
	FollowingIDs(ctx context.Context, userID uint) ([]uint, error)
}

type followRepository struct {
	db *gorm.DB
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) IsFollowing(ctx context.Context, followerID, followeeID uint) (bool, error) {
	var n int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.UserFollow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&n).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

// Toggle removes the edge if present, otherwise adds it, and reports the
// resulting state.
func (r *followRepository) Toggle(ctx context.Context, followerID, followeeID uint) (bool, error) {
	following := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
			Delete(&models.UserFollow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		following = true
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.UserFollow{FollowerID: followerID, FolloweeID: followeeID}).Error
	})
	if err != nil {
		return false, models.NewInternalError(err)
	}
	cache.Invalidate(ctx, cache.ProfileKey(followerID), cache.ProfileKey(followeeID))
	return following, nil
}

func (r *followRepository) Counts(ctx context.Context, userID uint) (int64, int64, error) {
	var followers, following int64
	db := readDB(r.db).WithContext(ctx)
	if err := db.Model(&models.UserFollow{}).Where("followee_id = ?", userID).Count(&followers).Error; err != nil {
		return 0, 0, models.NewInternalError(err)
	}
	if err := db.Model(&models.UserFollow{}).Where("follower_id = ?", userID).Count(&following).Error; err != nil {
		return 0, 0, models.NewInternalError(err)
	}
	return followers, following, nil
}

func (r *followRepository) FollowingIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	if err := readDB(r.db).WithContext(ctx).Model(&models.UserFollow{}).
		Where("follower_id = ?", userID).
		Pluck("followee_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}
