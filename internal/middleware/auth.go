// Package middleware provides authentication, logging, metrics and rate
// limiting middleware for the HTTP layer.
package middleware

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"hearth/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Token claim values shared by issuance and verification.
const (
	TokenIssuer      = "hearth-api"
	TokenAudience    = "hearth-client"
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenClaims is the verified subset of a JWT the application relies on.
type TokenClaims struct {
	UserID    uint
	Username  string
	Type      string
	JTI       string
	ExpiresAt time.Time
}

// ParseToken verifies signature, issuer, audience, expiry and token type.
func ParseToken(tokenString, secret, expectedType string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	if typ, _ := claims["typ"].(string); typ != expectedType {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || userID == 0 {
		return nil, ErrInvalidToken
	}

	out := &TokenClaims{UserID: uint(userID), Type: expectedType}
	out.Username, _ = claims["username"].(string)
	out.JTI, _ = claims["jti"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *fiber.Ctx) string {
	parts := strings.Split(c.Get("Authorization"), " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// AuthOptions configures AuthRequired.
type AuthOptions struct {
	Secret string
	// ResolveTicket consumes a single-use WebSocket ticket. Optional.
	ResolveTicket func(ctx context.Context, ticket string) (uint, bool)
	// IsRevoked reports whether an access token id has been blacklisted. Optional.
	IsRevoked func(ctx context.Context, jti string) bool
}

// AuthRequired enforces an access token (or WebSocket ticket) and stores
// the user id in c.Locals("userID") and the user context.
func AuthRequired(opts AuthOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if ticket := c.Query("ticket"); ticket != "" && opts.ResolveTicket != nil {
			userID, ok := opts.ResolveTicket(c.UserContext(), ticket)
			if !ok {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
			setUser(c, userID)
			return c.Next()
		}

		tokenString := BearerToken(c)
		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		claims, err := ParseToken(tokenString, opts.Secret, TokenTypeAccess)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		if claims.JTI != "" && opts.IsRevoked != nil && opts.IsRevoked(c.UserContext(), claims.JTI) {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Token has been revoked"))
		}

		setUser(c, claims.UserID)
		c.Locals("tokenClaims", claims)
		return c.Next()
	}
}

// OptionalAuth stores the user like AuthRequired when a valid, unrevoked
// access token is presented and lets anonymous requests through otherwise.
func OptionalAuth(opts AuthOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := BearerToken(c)
		if tokenString == "" {
			return c.Next()
		}
		claims, err := ParseToken(tokenString, opts.Secret, TokenTypeAccess)
		if err != nil {
			return c.Next()
		}
		if claims.JTI != "" && opts.IsRevoked != nil && opts.IsRevoked(c.UserContext(), claims.JTI) {
			return c.Next()
		}
		setUser(c, claims.UserID)
		c.Locals("tokenClaims", claims)
		return c.Next()
	}
}

func setUser(c *fiber.Ctx, userID uint) {
	c.Locals("userID", userID)
	// Sync to UserContext for logging and downstream services
	c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, userID))
}
