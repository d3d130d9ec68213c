package server

import (
	"hearth/internal/models"
	"hearth/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CheckCommentOwner rejects the request unless the caller wrote :commentId.
func (s *Server) CheckCommentOwner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		commentID, err := s.parseID(c, "commentId")
		if err != nil {
			return nil
		}
		if err := s.commentService.CheckOwner(c.UserContext(), commentID, currentUserID(c)); err != nil {
			return models.RespondWithAppError(c, err)
		}
		return c.Next()
	}
}

// CreateComment handles POST /api/comments
// @Summary Comment on a post
// @Tags comments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{postId=integer,content=string} true "Comment"
// @Success 201 {object} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /comments [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	var req struct {
		PostID  uint   `json:"postId"`
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return bodyError(c)
	}
	if req.PostID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("postId is required"))
	}

	comment, err := s.commentService.CreateComment(c.UserContext(), service.CreateCommentInput{
		PostID:  req.PostID,
		UserID:  currentUserID(c),
		Content: req.Content,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// GetComments handles GET /api/comments?postId=
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID, err := s.parseQueryID(c, "postId")
	if err != nil {
		return nil
	}
	comments, err := s.commentService.ListComments(c.UserContext(), postID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(comments)
}

// DeleteComment handles DELETE /api/comments/:commentId
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	commentID, err := s.parseID(c, "commentId")
	if err != nil {
		return nil
	}
	if err := s.commentService.DeleteComment(c.UserContext(), commentID, currentUserID(c)); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Comment deleted successfully"})
}
