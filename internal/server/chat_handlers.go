package server

import (
	"hearth/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetChats handles GET /api/chats
// @Summary List chats
// @Description Every chat the caller participates in, most recent activity first
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Success 200 {array} chatview.ChatSummary
// @Router /chats [get]
func (s *Server) GetChats(c *fiber.Ctx) error {
	chats, err := s.chatService.ListChats(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(chats)
}

// GetUnreadChats handles GET /api/chats/messages/unread
// @Summary Chats with unread messages
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Success 200 {array} chatview.ChatSummary
// @Router /chats/messages/unread [get]
func (s *Server) GetUnreadChats(c *fiber.Ctx) error {
	chats, err := s.chatService.UnreadChats(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(chats)
}

// GetChat handles GET /api/chats/:chatId
// @Summary Chat with its messages
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Param chatId path int true "Chat ID"
// @Success 200 {object} chatview.ChatDetail
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /chats/{chatId} [get]
func (s *Server) GetChat(c *fiber.Ctx) error {
	chatID, err := s.parseID(c, "chatId")
	if err != nil {
		return nil
	}
	chat, err := s.chatService.GetChat(c.UserContext(), chatID, currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(chat)
}

// OpenDirectChat handles POST /api/chats/direct/:userId
func (s *Server) OpenDirectChat(c *fiber.Ctx) error {
	otherID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}
	chat, err := s.chatService.OpenDirectChat(c.UserContext(), currentUserID(c), otherID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(chat)
}

// MarkChatRead handles PUT /api/chats/:chatId/read
// @Summary Mark a chat read
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Param chatId path int true "Chat ID"
// @Success 200 {object} object{chatId=integer,marked=integer}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /chats/{chatId}/read [put]
func (s *Server) MarkChatRead(c *fiber.Ctx) error {
	chatID, err := s.parseID(c, "chatId")
	if err != nil {
		return nil
	}
	n, err := s.chatService.MarkChatRead(c.UserContext(), chatID, currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"chatId": chatID, "marked": n})
}
