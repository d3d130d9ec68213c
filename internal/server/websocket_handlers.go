package server

import (
	"encoding/json"
	"log/slog"

	"hearth/internal/middleware"
	"hearth/internal/models"
	"hearth/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// IssueWSTicket handles POST /api/ws/ticket
// @Summary Issue a websocket ticket
// @Description Returns a short-lived single-use ticket for GET /api/ws?ticket=
// @Tags realtime
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{ticket=string}
// @Failure 503 {object} models.ErrorResponse
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	ticket, err := s.authService.IssueTicket(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"ticket": ticket})
}

// WebSocketUpgrade lets only websocket handshakes through to the handler.
func (s *Server) WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return c.Status(fiber.StatusUpgradeRequired).JSON(models.ErrorResponse{
		Error: "[UpgradeRequired]: WebSocket upgrade required",
		Code:  "UPGRADE_REQUIRED",
	})
}

// WebSocketHandler serves the realtime chat protocol on an authenticated
// connection.
func (s *Server) WebSocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals("userID").(uint)
		if !ok || userID == 0 {
			_ = conn.Close()
			return
		}

		if err := s.delivery.Serve(conn, userID); err != nil {
			middleware.Logger.Warn("websocket rejected",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("error", err.Error()),
			)
			frame, _ := json.Marshal(notifications.Envelope{
				Event: notifications.EventError,
				Data: mustJSON(notifications.ErrorPayload{
					Message: err.Error(),
					Code:    "CONNECTION_LIMIT",
				}),
			})
			_ = conn.WriteMessage(websocket.TextMessage, frame)
			_ = conn.Close()
		}
	})
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
