package repository

import (
	"context"
	"errors"

	"hearth/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint, currentUserID uint) (*models.Post, error)
	List(ctx context.Context, limit, offset int, currentUserID uint) ([]*models.Post, error)
	ListByGroup(ctx context.Context, groupID uint, limit, offset int, currentUserID uint) ([]*models.Post, error)
	Explore(ctx context.Context, userID uint, limit, offset int) ([]*models.Post, error)
	Search(ctx context.Context, query string, limit int, currentUserID uint) ([]*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
	Like(ctx context.Context, userID, postID uint) error
	Unlike(ctx context.Context, userID, postID uint) error
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// Create inserts the post. For group posts the author's membership is
// checked in the same transaction as the insert; ErrNotGroupMember is
// returned when it does not hold.
func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if post.GroupID != nil {
			ok, err := isGroupMember(tx, *post.GroupID, post.UserID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrNotGroupMember
			}
		}
		return tx.Omit(clause.Associations).Create(post).Error
	})
	if errors.Is(err, ErrNotGroupMember) {
		return err
	}
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint, currentUserID uint) (*models.Post, error) {
	var post models.Post
	if err := r.applyPostDetails(readDB(r.db).WithContext(ctx), currentUserID).
		Preload("User").
		First(&post, id).Error; err != nil {
		return nil, notFoundOr(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, limit, offset int, currentUserID uint) ([]*models.Post, error) {
	return r.find(r.applyPostDetails(readDB(r.db).WithContext(ctx), currentUserID), limit, offset)
}

func (r *postRepository) ListByGroup(ctx context.Context, groupID uint, limit, offset int, currentUserID uint) ([]*models.Post, error) {
	q := r.applyPostDetails(readDB(r.db).WithContext(ctx), currentUserID).
		Where("posts.group_id = ?", groupID)
	return r.find(q, limit, offset)
}

// Explore returns posts authored by users the viewer follows or published
// in groups the viewer belongs to, newest first.
func (r *postRepository) Explore(ctx context.Context, userID uint, limit, offset int) ([]*models.Post, error) {
	db := readDB(r.db).WithContext(ctx)
	followed := db.Session(&gorm.Session{NewDB: true}).Table("user_follows").
		Select("followee_id").Where("follower_id = ?", userID)
	joined := db.Session(&gorm.Session{NewDB: true}).Table("group_members").
		Select("group_id").Where("user_id = ?", userID)

	q := r.applyPostDetails(db, userID).
		Where("posts.user_id IN (?) OR posts.group_id IN (?)", followed, joined)
	return r.find(q, limit, offset)
}

func (r *postRepository) Search(ctx context.Context, query string, limit int, currentUserID uint) ([]*models.Post, error) {
	q := r.applyPostDetails(readDB(r.db).WithContext(ctx), currentUserID).
		Where("LOWER(posts.content) LIKE ?", likePattern(query))
	return r.find(q, limit, 0)
}

func (r *postRepository) find(q *gorm.DB, limit, offset int) ([]*models.Post, error) {
	var posts []*models.Post
	if err := q.Preload("User").
		Order("posts.created_at DESC, posts.id DESC").
		Limit(clampLimit(limit)).
		Offset(max(offset, 0)).
		Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Model(post).
		Select("content", "image").
		Updates(map[string]any{"content": post.Content, "image": post.Image}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Delete soft-deletes the post and its comments and drops its likes.
func (r *postRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, id).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Like adds userID to the post's like set; liking twice is a no-op.
func (r *postRepository) Like(ctx context.Context, userID, postID uint) error {
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Like{UserID: userID, PostID: postID}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) Unlike(ctx context.Context, userID, postID uint) error {
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Delete(&models.Like{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// applyPostDetails adds subqueries to fetch counts and liked status in a single query.
func (r *postRepository) applyPostDetails(db *gorm.DB, currentUserID uint) *gorm.DB {
	selectQuery := "posts.*, " +
		"(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id AND comments.deleted_at IS NULL) AS comments_count, " +
		"(SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id) AS likes_count"

	if currentUserID != 0 {
		return db.Model(&models.Post{}).
			Select(selectQuery+", EXISTS(SELECT 1 FROM likes WHERE likes.post_id = posts.id AND likes.user_id = ?) AS liked", currentUserID)
	}
	return db.Model(&models.Post{}).Select(selectQuery + ", false AS liked")
}
