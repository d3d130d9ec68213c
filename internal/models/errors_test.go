package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_StatusAndKind(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
		kind   string
	}{
		{NewValidationError("bad"), fiber.StatusBadRequest, "BadRequest"},
		{NewUnauthorizedError("nope"), fiber.StatusUnauthorized, "Unauthorized"},
		{NewForbiddenError("mine"), fiber.StatusForbidden, "Forbidden"},
		{NewNotFoundError("Post", 3), fiber.StatusNotFound, "NotFound"},
		{NewConflictError("dup"), fiber.StatusConflict, "Conflict"},
		{NewInternalError(errors.New("boom")), fiber.StatusInternalServerError, "InternalServerError"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status())
			assert.Equal(t, tt.kind, tt.err.Kind())
		})
	}
}

func TestIsNotFound(t *testing.T) {
	wrapped := fmt.Errorf("loading: %w", NewNotFoundError("User", 9))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsNotFound(NewValidationError("x")))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestRespondWithAppError_Body(t *testing.T) {
	app := fiber.New()
	app.Get("/missing", func(c *fiber.Ctx) error {
		return RespondWithAppError(c, NewNotFoundError("Post", 7))
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return RespondWithAppError(c, errors.New("pq: connection refused"))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "[NotFound]: Post with ID 7 not found", body.Error)
	assert.Equal(t, CodeNotFound, body.Code)

	resp, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "[InternalServerError]: Internal server error")
	assert.NotContains(t, string(raw), "connection refused")
}

func TestDirectChatKey_Unordered(t *testing.T) {
	assert.Equal(t, "2:5", DirectChatKey(5, 2))
	assert.Equal(t, DirectChatKey(5, 2), DirectChatKey(2, 5))
}

func TestMessage_ReadSet(t *testing.T) {
	m := Message{SenderID: 1, Reads: []MessageRead{{UserID: 1}, {UserID: 4}}}
	assert.ElementsMatch(t, []uint{1, 4}, m.ReadBy())
	assert.True(t, m.IsReadBy(4))
	assert.False(t, m.IsReadBy(2))
}
