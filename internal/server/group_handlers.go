package server

import (
	"hearth/internal/models"
	"hearth/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateGroup handles POST /api/groups
// @Summary Create a group
// @Description Creates the group and its group chat. The creator is always a member.
// @Tags groups
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{name=string,description=string,avatar=string,members=[]integer} true "Group"
// @Success 201 {object} models.Group
// @Failure 400 {object} models.ErrorResponse
// @Router /groups [post]
func (s *Server) CreateGroup(c *fiber.Ctx) error {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Avatar      string `json:"avatar"`
		Members     []uint `json:"members"`
	}
	if err := c.BodyParser(&req); err != nil {
		return bodyError(c)
	}

	group, err := s.groupService.CreateGroup(c.UserContext(), service.CreateGroupInput{
		CreatorID:   currentUserID(c),
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
		MemberIDs:   req.Members,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(group)
}

// GetGroups handles GET /api/groups?mine=true
func (s *Server) GetGroups(c *fiber.Ctx) error {
	page := parsePagination(c, defaultListPageSize)
	groups, err := s.groupService.List(c.UserContext(), currentUserID(c), c.QueryBool("mine"), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(groups)
}

// GetGroup handles GET /api/groups/:groupId
func (s *Server) GetGroup(c *fiber.Ctx) error {
	groupID, err := s.parseID(c, "groupId")
	if err != nil {
		return nil
	}
	group, err := s.groupService.Get(c.UserContext(), groupID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(group)
}

// ToggleGroupMembership handles POST /api/groups/:groupId/join
// @Summary Join or leave a group
// @Description Joins when the caller is not a member, leaves otherwise
// @Tags groups
// @Produce json
// @Security BearerAuth
// @Param groupId path int true "Group ID"
// @Success 200 {object} object{joined=bool}
// @Failure 404 {object} models.ErrorResponse
// @Router /groups/{groupId}/join [post]
func (s *Server) ToggleGroupMembership(c *fiber.Ctx) error {
	groupID, err := s.parseID(c, "groupId")
	if err != nil {
		return nil
	}
	joined, err := s.groupService.ToggleMembership(c.UserContext(), groupID, currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"joined": joined})
}
