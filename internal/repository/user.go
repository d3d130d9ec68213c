package repository

import (
	"context"
	"errors"

	"hearth/internal/cache"
	"hearth/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByLogin(ctx context.Context, identifier string) (*models.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Search(ctx context.Context, query string, limit int) ([]models.User, error)
	GroupIDs(ctx context.Context, userID uint) ([]uint, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, func() error {
		if err := readDB(r.db).WithContext(ctx).First(&user, id).Error; err != nil {
			return notFoundOr(err, "User", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []models.User
	if err := readDB(r.db).WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

// findOne returns nil, nil when no row matches.
func (r *userRepository) findOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	var user models.User
	if err := readDB(r.db).WithContext(ctx).Where(query, args...).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "LOWER(email) = LOWER(?)", email)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, "username = ?", username)
}

// GetByLogin matches either the email (case-insensitive) or the username.
func (r *userRepository) GetByLogin(ctx context.Context, identifier string) (*models.User, error) {
	return r.findOne(ctx, "LOWER(email) = LOWER(?) OR username = ?", identifier, identifier)
}

func (r *userRepository) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	return r.findOne(ctx, "google_id = ?", googleID)
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Omit("Following", "Groups").Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("User already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

// Update writes the profile columns. Cached users carry no password hash,
// so the credential columns are never written here; google_id only when set.
func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	cols := []string{"name", "bio", "avatar", "updated_at"}
	if user.GoogleID != nil {
		cols = append(cols, "google_id")
	}
	if err := r.db.WithContext(ctx).Model(user).Select(cols).Updates(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Username or email already taken")
		}
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, user.ID)
	return nil
}

func (r *userRepository) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	var users []models.User
	pattern := likePattern(query)
	if err := readDB(r.db).WithContext(ctx).
		Where("LOWER(username) LIKE ? OR LOWER(name) LIKE ?", pattern, pattern).
		Order("username ASC").
		Limit(clampLimit(limit)).
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

// GroupIDs returns the ids of the groups the user is a member of.
func (r *userRepository) GroupIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	if err := readDB(r.db).WithContext(ctx).
		Table("group_members").
		Where("user_id = ?", userID).
		Order("group_id ASC").
		Pluck("group_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}
