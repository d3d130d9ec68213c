package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hearth/internal/config"
	"hearth/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testPassword = "Str0ng!Passw0rd"

type testEnv struct {
	srv *Server
	app *fiber.App
	db  *gorm.DB
	mr  *miniredis.Miniredis
	rdb *redis.Client
	pub *testutil.PublisherMock
}

type session struct {
	ID           uint
	Username     string
	Token        string
	RefreshToken string
}

func newTestConfig(flags string) *config.Config {
	return &config.Config{
		Env:              "test",
		JWTSecret:        "test-access-secret-0123456789abcdef",
		JWTRefreshSecret: "test-refresh-secret-0123456789abcdef",
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  24 * time.Hour,
		MaxRefreshTokens: 5,
		AllowedOrigins:   "http://localhost:5173",
		ActiveChatStore:  config.TrackerRedis,
		FeatureFlags:     flags,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithFlags(t, "")
}

func newTestEnvWithFlags(t *testing.T, flags string) *testEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	pub := testutil.NewPermissivePublisher()

	srv, err := NewServerWithDeps(newTestConfig(flags), Deps{DB: db, Redis: rdb, Publisher: pub})
	require.NoError(t, err)
	return &testEnv{srv: srv, app: srv.App(), db: db, mr: mr, rdb: rdb, pub: pub}
}

// do sends a JSON request and returns the response with its body read.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

// doInto is do plus a status assertion and JSON decoding of the body.
func (e *testEnv) doInto(t *testing.T, method, path, token string, body any, status int, out any) {
	t.Helper()
	resp, data := e.do(t, method, path, token, body)
	require.Equal(t, status, resp.StatusCode, string(data))
	if out != nil {
		require.NoError(t, json.Unmarshal(data, out), string(data))
	}
}

func (e *testEnv) register(t *testing.T, username string) session {
	t.Helper()
	var res struct {
		User struct {
			ID       uint   `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	e.doInto(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"username": username,
		"email":    fmt.Sprintf("%s@example.com", username),
		"password": testPassword,
		"name":     username,
	}, http.StatusCreated, &res)
	require.NotEmpty(t, res.Token)
	require.NotEmpty(t, res.RefreshToken)
	return session{ID: res.User.ID, Username: res.User.Username, Token: res.Token, RefreshToken: res.RefreshToken}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (e *testEnv) expectError(t *testing.T, method, path, token string, body any, status int, code string) errorBody {
	t.Helper()
	var out errorBody
	e.doInto(t, method, path, token, body, status, &out)
	require.Equal(t, code, out.Code)
	return out
}

func newRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// doRaw sends body unchanged, for malformed payloads.
func (e *testEnv) doRaw(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := e.app.Test(newRequest(method, path, body), -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}
