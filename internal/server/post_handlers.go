package server

import (
	"strconv"

	"hearth/internal/models"
	"hearth/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CheckPostOwner rejects the request unless the caller wrote :postId.
func (s *Server) CheckPostOwner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		postID, err := s.parseID(c, "postId")
		if err != nil {
			return nil
		}
		if err := s.postService.CheckOwner(c.UserContext(), postID, currentUserID(c)); err != nil {
			return models.RespondWithAppError(c, err)
		}
		return c.Next()
	}
}

// CreatePost handles POST /api/posts
// @Summary Create a post
// @Description Posts with a groupId require membership of that group
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{content=string,image=string,groupId=integer} true "Post"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
		Image   string `json:"image"`
		GroupID *uint  `json:"groupId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return bodyError(c)
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		UserID:  currentUserID(c),
		Content: req.Content,
		Image:   req.Image,
		GroupID: req.GroupID,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetPosts handles GET /api/posts
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page := parsePagination(c, defaultListPageSize)
	posts, err := s.postService.ListPosts(c.UserContext(), page.Limit, page.Offset, currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

// GetExplorePosts handles GET /api/posts/explore?page=
// @Summary Explore feed
// @Description Posts by followed users or from the caller's groups, newest first
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page, starting at 1"
// @Success 200 {array} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Router /posts/explore [get]
func (s *Server) GetExplorePosts(c *fiber.Ctx) error {
	page := 1
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("page must be a positive integer"))
		}
		page = n
	}

	posts, err := s.postService.GetExplorePosts(c.UserContext(), currentUserID(c), page)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

// GetGroupPosts handles GET /api/posts/group/:groupId
func (s *Server) GetGroupPosts(c *fiber.Ctx) error {
	groupID, err := s.parseID(c, "groupId")
	if err != nil {
		return nil
	}
	page := parsePagination(c, defaultListPageSize)

	posts, err := s.postService.GetGroupPosts(c.UserContext(), groupID, currentUserID(c), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

// GetPost handles GET /api/posts/:postId
func (s *Server) GetPost(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}
	post, err := s.postService.GetPost(c.UserContext(), postID, currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

// UpdatePost handles PUT /api/posts/:postId
// @Summary Edit a post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Param request body object{content=string,image=string} true "Fields to change"
// @Success 200 {object} models.Post
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{postId} [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}
	var req struct {
		Content *string `json:"content"`
		Image   *string `json:"image"`
	}
	if err := c.BodyParser(&req); err != nil {
		return bodyError(c)
	}

	post, err := s.postService.UpdatePost(c.UserContext(), service.UpdatePostInput{
		PostID:  postID,
		UserID:  currentUserID(c),
		Content: req.Content,
		Image:   req.Image,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:postId
func (s *Server) DeletePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}
	if err := s.postService.DeletePost(c.UserContext(), postID, currentUserID(c)); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Post deleted successfully"})
}

// LikePost handles POST /api/posts/like/:postId
func (s *Server) LikePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}
	post, err := s.postService.LikePost(c.UserContext(), postID, currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

// UnlikePost handles POST /api/posts/unlike/:postId
func (s *Server) UnlikePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}
	post, err := s.postService.UnlikePost(c.UserContext(), postID, currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}
