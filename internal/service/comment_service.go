package service

import (
	"context"

	"hearth/internal/models"
	"hearth/internal/repository"
	"hearth/internal/validation"
)

type CommentService struct {
	comments repository.CommentRepository
	posts    repository.PostRepository
}

type CreateCommentInput struct {
	PostID  uint
	UserID  uint
	Content string
}

func NewCommentService(comments repository.CommentRepository, posts repository.PostRepository) *CommentService {
	return &CommentService{comments: comments, posts: posts}
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	if in.PostID == 0 {
		return nil, models.NewValidationError("postId is required")
	}
	if err := validation.ValidateContent("content", in.Content, validation.MaxCommentLength); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if _, err := s.posts.GetByID(ctx, in.PostID, 0); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		Content: in.Content,
		UserID:  in.UserID,
		PostID:  in.PostID,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *CommentService) ListComments(ctx context.Context, postID uint) ([]*models.Comment, error) {
	if postID == 0 {
		return nil, models.NewValidationError("postId is required")
	}
	if _, err := s.posts.GetByID(ctx, postID, 0); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	return comments, nil
}

func (s *CommentService) DeleteComment(ctx context.Context, commentID, userID uint) error {
	if err := s.CheckOwner(ctx, commentID, userID); err != nil {
		return err
	}
	return s.comments.Delete(ctx, commentID)
}

// CheckOwner returns NOT_FOUND for a missing comment and FORBIDDEN when
// userID is not its author.
func (s *CommentService) CheckOwner(ctx context.Context, commentID, userID uint) error {
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.UserID != userID {
		return models.NewForbiddenError("You do not own this comment")
	}
	return nil
}
