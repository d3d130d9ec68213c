package service

import (
	"context"
	"errors"

	"hearth/internal/events"
	"hearth/internal/models"
	"hearth/internal/repository"
	"hearth/internal/validation"
)

const defaultExplorePageSize = 10

type PostService struct {
	posts           repository.PostRepository
	groups          repository.GroupRepository
	publisher       events.Publisher
	explorePageSize int
}

type CreatePostInput struct {
	UserID  uint
	Content string
	Image   string
	GroupID *uint
}

type UpdatePostInput struct {
	PostID  uint
	UserID  uint
	Content *string
	Image   *string
}

func NewPostService(
	posts repository.PostRepository,
	groups repository.GroupRepository,
	publisher events.Publisher,
	explorePageSize int,
) *PostService {
	if explorePageSize <= 0 {
		explorePageSize = defaultExplorePageSize
	}
	return &PostService{posts: posts, groups: groups, publisher: publisher, explorePageSize: explorePageSize}
}

// CreatePost stores a post. Group posts require membership, which the
// repository checks in the same transaction as the insert.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if err := validation.ValidateContent("content", in.Content, validation.MaxPostLength); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if in.GroupID != nil {
		if _, err := s.groups.GetByID(ctx, *in.GroupID); err != nil {
			return nil, err
		}
	}

	post := &models.Post{
		Content: in.Content,
		Image:   in.Image,
		UserID:  in.UserID,
		GroupID: in.GroupID,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		if errors.Is(err, repository.ErrNotGroupMember) {
			return nil, models.NewValidationError("You must be a member of the group to post in it")
		}
		return nil, err
	}

	created, err := s.posts.GetByID(ctx, post.ID, in.UserID)
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, s.publisher, events.PostCreated, map[string]any{
		"postId":  created.ID,
		"userId":  created.UserID,
		"groupId": created.GroupID,
	})
	return created, nil
}

func (s *PostService) GetPost(ctx context.Context, postID, viewerID uint) (*models.Post, error) {
	return s.posts.GetByID(ctx, postID, viewerID)
}

func (s *PostService) ListPosts(ctx context.Context, limit, offset int, viewerID uint) ([]*models.Post, error) {
	posts, err := s.posts.List(ctx, limit, offset, viewerID)
	if err != nil {
		return nil, err
	}
	return nonNilPosts(posts), nil
}

func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, in.PostID, in.UserID)
	if err != nil {
		return nil, err
	}
	if post.UserID != in.UserID {
		return nil, models.NewForbiddenError("You can only edit your own posts")
	}

	if in.Content != nil {
		if err := validation.ValidateContent("content", *in.Content, validation.MaxPostLength); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		post.Content = *in.Content
	}
	if in.Image != nil {
		post.Image = *in.Image
	}

	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) DeletePost(ctx context.Context, postID, userID uint) error {
	if err := s.CheckOwner(ctx, postID, userID); err != nil {
		return err
	}
	return s.posts.Delete(ctx, postID)
}

// CheckOwner returns NOT_FOUND for a missing post and FORBIDDEN when userID
// is not its author.
func (s *PostService) CheckOwner(ctx context.Context, postID, userID uint) error {
	post, err := s.posts.GetByID(ctx, postID, 0)
	if err != nil {
		return err
	}
	if post.UserID != userID {
		return models.NewForbiddenError("You do not own this post")
	}
	return nil
}

func (s *PostService) LikePost(ctx context.Context, postID, userID uint) (*models.Post, error) {
	if _, err := s.posts.GetByID(ctx, postID, userID); err != nil {
		return nil, err
	}
	if err := s.posts.Like(ctx, userID, postID); err != nil {
		return nil, err
	}
	return s.posts.GetByID(ctx, postID, userID)
}

func (s *PostService) UnlikePost(ctx context.Context, postID, userID uint) (*models.Post, error) {
	if _, err := s.posts.GetByID(ctx, postID, userID); err != nil {
		return nil, err
	}
	if err := s.posts.Unlike(ctx, userID, postID); err != nil {
		return nil, err
	}
	return s.posts.GetByID(ctx, postID, userID)
}

// GetExplorePosts pages through posts by followed authors or from the
// user's groups, newest first. Pages start at 1.
func (s *PostService) GetExplorePosts(ctx context.Context, userID uint, page int) ([]*models.Post, error) {
	if page <= 0 {
		return nil, models.NewValidationError("page must be a positive integer")
	}
	offset := (page - 1) * s.explorePageSize
	posts, err := s.posts.Explore(ctx, userID, s.explorePageSize, offset)
	if err != nil {
		return nil, err
	}
	return nonNilPosts(posts), nil
}

// GetGroupPosts lists a group's posts for one of its members.
func (s *PostService) GetGroupPosts(ctx context.Context, groupID, userID uint, limit, offset int) ([]*models.Post, error) {
	if _, err := s.groups.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	member, err := s.groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, models.NewForbiddenError("You must be a member of the group to view its posts")
	}
	posts, err := s.posts.ListByGroup(ctx, groupID, limit, offset, userID)
	if err != nil {
		return nil, err
	}
	return nonNilPosts(posts), nil
}

func nonNilPosts(posts []*models.Post) []*models.Post {
	if posts == nil {
		return []*models.Post{}
	}
	return posts
}
