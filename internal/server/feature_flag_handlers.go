package server

import "github.com/gofiber/fiber/v2"

// GetFeatureFlags handles GET /api/features
// @Summary Feature flags
// @Description Configured flags and their evaluated state for the caller. Builtin flags are listed even when unset.
// @Tags features
// @Produce json
// @Success 200 {object} object{raw=map[string]string,evaluated=map[string]bool}
// @Router /features [get]
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(currentUserID(c)),
	})
}
