package server

import (
	"hearth/internal/middleware"
	"hearth/internal/models"
	"hearth/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Register handles POST /api/auth/register
// @Summary Register
// @Description Create an account and sign in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{username=string,email=string,password=string,name=string} true "Registration"
// @Success 201 {object} service.AuthResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return bodyError(c)
	}

	res, err := s.authService.Register(c.UserContext(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	s.setRefreshCookie(c, res.RefreshToken)
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Login handles POST /api/auth/login
// @Summary Login
// @Description Authenticate with an email or username and a password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Credentials"
// @Success 200 {object} service.AuthResult
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Identifier string `json:"identifier"`
		Email      string `json:"email"`
		Username   string `json:"username"`
		Password   string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return bodyError(c)
	}

	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" {
		identifier = req.Username
	}

	res, err := s.authService.Login(c.UserContext(), service.LoginInput{
		Identifier: identifier,
		Password:   req.Password,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	s.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(res)
}

// GoogleLogin handles POST /api/auth/google
// @Summary Google sign-in
// @Description Sign in with a Google ID token (credential) or an authorization code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{credential=string,code=string} true "Google credential or code"
// @Success 200 {object} service.AuthResult
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /auth/google [post]
func (s *Server) GoogleLogin(c *fiber.Ctx) error {
	var req struct {
		Credential string `json:"credential"`
		Code       string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return bodyError(c)
	}

	res, err := s.authService.GoogleLogin(c.UserContext(), service.GoogleLoginInput{
		Credential: req.Credential,
		Code:       req.Code,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	s.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(res)
}

// RefreshToken handles POST /api/auth/refreshToken
// @Summary Rotate tokens
// @Description Exchange a refresh token for a new token pair. Replaying a rotated token revokes every session of the user.
// @Tags auth
// @Produce json
// @Param request body object{refreshToken=string} false "Refresh token when no cookie is sent"
// @Success 200 {object} service.AuthResult
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/refreshToken [post]
func (s *Server) RefreshToken(c *fiber.Ctx) error {
	token := refreshTokenFrom(c)
	if token == "" {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Refresh token required"))
	}

	res, err := s.authService.Refresh(c.UserContext(), token)
	if err != nil {
		clearRefreshCookie(c)
		return models.RespondWithAppError(c, err)
	}

	s.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(res)
}

// Logout handles POST /api/auth/logout
// @Summary Logout
// @Description Revoke the presented refresh token and blacklist the access token. Always succeeds.
// @Tags auth
// @Produce json
// @Success 200 {object} object{message=string}
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, _ := c.Locals("tokenClaims").(*middleware.TokenClaims)
	s.authService.Logout(c.UserContext(), refreshTokenFrom(c), claims)
	clearRefreshCookie(c)
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// Verify handles GET /api/auth/verify
// @Summary Verify session
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{valid=bool,user=models.User}
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/verify [get]
func (s *Server) Verify(c *fiber.Ctx) error {
	user, err := s.authService.Verify(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"valid": true, "user": user})
}
