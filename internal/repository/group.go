package repository

import (
	"context"
	"errors"

	"hearth/internal/cache"
	"hearth/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotGroupMember is returned when a write requires group membership the
// user does not have.
var ErrNotGroupMember = errors.New("user is not a member of the group")

// GroupRepository defines persistence operations for groups and their
// admin/member sets.
type GroupRepository interface {
	Create(ctx context.Context, group *models.Group, memberIDs []uint) error
	GetByID(ctx context.Context, id uint) (*models.Group, error)
	List(ctx context.Context, limit, offset int) ([]models.Group, error)
	ListForUser(ctx context.Context, userID uint) ([]models.Group, error)
	Search(ctx context.Context, query string, limit int) ([]models.Group, error)
	IsMember(ctx context.Context, groupID, userID uint) (bool, error)
	AddMember(ctx context.Context, groupID, userID uint) error
	RemoveMember(ctx context.Context, groupID, userID uint) error
	Delete(ctx context.Context, id uint) error
}

type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

type groupUserRow struct {
	GroupID uint
	UserID  uint
}

// Create inserts the group with its creator as admin and member, plus the
// given members, in one transaction.
func (r *groupRepository) Create(ctx context.Context, group *models.Group, memberIDs []uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(group).Error; err != nil {
			return err
		}

		seen := map[uint]struct{}{group.CreatorID: {}}
		members := []groupUserRow{{GroupID: group.ID, UserID: group.CreatorID}}
		for _, id := range memberIDs {
			if _, ok := seen[id]; ok || id == 0 {
				continue
			}
			seen[id] = struct{}{}
			members = append(members, groupUserRow{GroupID: group.ID, UserID: id})
		}

		if err := tx.Table("group_admins").Create(&groupUserRow{GroupID: group.ID, UserID: group.CreatorID}).Error; err != nil {
			return err
		}
		return tx.Table("group_members").Create(&members).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *groupRepository) GetByID(ctx context.Context, id uint) (*models.Group, error) {
	var group models.Group
	if err := readDB(r.db).WithContext(ctx).
		Preload("Creator").
		Preload("Admins").
		Preload("Members").
		First(&group, id).Error; err != nil {
		return nil, notFoundOr(err, "Group", id)
	}
	return &group, nil
}

func (r *groupRepository) List(ctx context.Context, limit, offset int) ([]models.Group, error) {
	var groups []models.Group
	if err := readDB(r.db).WithContext(ctx).
		Preload("Members").
		Order("created_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Offset(max(offset, 0)).
		Find(&groups).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return groups, nil
}

func (r *groupRepository) ListForUser(ctx context.Context, userID uint) ([]models.Group, error) {
	var groups []models.Group
	if err := readDB(r.db).WithContext(ctx).
		Preload("Members").
		Joins("JOIN group_members gm ON gm.group_id = groups.id AND gm.user_id = ?", userID).
		Order("groups.created_at DESC, groups.id DESC").
		Find(&groups).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return groups, nil
}

func (r *groupRepository) Search(ctx context.Context, query string, limit int) ([]models.Group, error) {
	var groups []models.Group
	pattern := likePattern(query)
	if err := readDB(r.db).WithContext(ctx).
		Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern).
		Order("name ASC").
		Limit(clampLimit(limit)).
		Find(&groups).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return groups, nil
}

func (r *groupRepository) IsMember(ctx context.Context, groupID, userID uint) (bool, error) {
	ok, err := isGroupMember(r.db.WithContext(ctx), groupID, userID)
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return ok, nil
}

func isGroupMember(db *gorm.DB, groupID, userID uint) (bool, error) {
	var n int64
	err := db.Table("group_members").
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *groupRepository) AddMember(ctx context.Context, groupID, userID uint) error {
	if err := r.db.WithContext(ctx).Table("group_members").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&groupUserRow{GroupID: groupID, UserID: userID}).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateGroup(ctx, groupID)
	return nil
}

func (r *groupRepository) RemoveMember(ctx context.Context, groupID, userID uint) error {
	if err := r.db.WithContext(ctx).
		Exec("DELETE FROM group_members WHERE group_id = ? AND user_id = ?", groupID, userID).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateGroup(ctx, groupID)
	return nil
}

// Delete removes the group and its admin and member rows.
func (r *groupRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM group_admins WHERE group_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM group_members WHERE group_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, id).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateGroup(ctx, id)
	return nil
}
