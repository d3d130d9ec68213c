package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupMockDB creates a GORM *gorm.DB backed by sqlmock for unit tests.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

// probe serves a single request to route on a bare app and returns the
// status and the decoded JSON body.
func probe(t *testing.T, route, target string, h fiber.Handler) (int, map[string]any) {
	t.Helper()
	app := fiber.New()
	app.Get(route, h)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp.StatusCode, body
}

func TestHumanizeParam(t *testing.T) {
	for param, want := range map[string]string{
		"id":            "ID",
		"userId":        "user ID",
		"chatId":        "chat ID",
		"groupMemberId": "group member ID",
		"messageId":     "message ID",
		"limit":         "limit",
	} {
		assert.Equal(t, want, humanizeParam(param), param)
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query         string
		limit, offset float64
	}{
		{"", 25, 0},
		{"?limit=10&offset=30", 10, 30},
		{"?limit=0", 25, 0},
		{"?limit=-4&offset=-1", 25, 0},
		{"?limit=1000", maxPaginationLimit, 0},
		{"?limit=abc", 25, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			status, body := probe(t, "/items", "/items"+tt.query, func(c *fiber.Ctx) error {
				p := parsePagination(c, 25)
				return c.JSON(fiber.Map{"limit": p.Limit, "offset": p.Offset})
			})
			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, tt.limit, body["limit"])
			assert.Equal(t, tt.offset, body["offset"])
		})
	}
}

func TestParseID(t *testing.T) {
	s := &Server{}
	tests := []struct {
		param, value string
		status       int
		wantErr      string
	}{
		{"id", "42", http.StatusOK, ""},
		{"id", "abc", http.StatusBadRequest, "[BadRequest]: Invalid ID"},
		{"id", "0", http.StatusBadRequest, "[BadRequest]: Invalid ID"},
		{"id", "-9", http.StatusBadRequest, "[BadRequest]: Invalid ID"},
		{"userId", "x", http.StatusBadRequest, "[BadRequest]: Invalid user ID"},
		{"chatId", "x", http.StatusBadRequest, "[BadRequest]: Invalid chat ID"},
		{"groupId", "x", http.StatusBadRequest, "[BadRequest]: Invalid group ID"},
	}
	for _, tt := range tests {
		t.Run(tt.param+"="+tt.value, func(t *testing.T) {
			status, body := probe(t, "/items/:"+tt.param, "/items/"+tt.value, func(c *fiber.Ctx) error {
				id, err := s.parseID(c, tt.param)
				if err != nil {
					return nil
				}
				return c.JSON(fiber.Map{"id": id})
			})
			assert.Equal(t, tt.status, status)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, body["error"])
				assert.Equal(t, "VALIDATION_ERROR", body["code"])
			} else {
				assert.EqualValues(t, 42, body["id"])
			}
		})
	}
}

func TestParseQueryID(t *testing.T) {
	s := &Server{}
	for query, want := range map[string]int{
		"?postId=7":     http.StatusOK,
		"":              http.StatusBadRequest,
		"?postId=0":     http.StatusBadRequest,
		"?postId=-3":    http.StatusBadRequest,
		"?postId=seven": http.StatusBadRequest,
	} {
		status, _ := probe(t, "/comments", "/comments"+query, func(c *fiber.Ctx) error {
			id, err := s.parseQueryID(c, "postId")
			if err != nil {
				return nil
			}
			return c.JSON(fiber.Map{"id": id})
		})
		assert.Equal(t, want, status, query)
	}
}

func TestRefreshTokenFrom_Precedence(t *testing.T) {
	app := fiber.New()
	app.Post("/refresh", func(c *fiber.Ctx) error {
		return c.SendString(refreshTokenFrom(c))
	})

	tests := []struct {
		name   string
		cookie string
		body   string
		header string
		want   string
	}{
		{name: "cookie wins", cookie: "from-cookie", body: `{"refreshToken":"from-body"}`, header: "from-header", want: "from-cookie"},
		{name: "body before header", body: `{"refreshToken":"from-body"}`, header: "from-header", want: "from-body"},
		{name: "header only", header: "from-header", want: "from-header"},
		{name: "nothing", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/refresh", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(refreshHeaderName, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			got, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestReadinessCheck_DatabaseDown(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	s := &Server{db: gormDB}
	app := fiber.New()
	app.Get("/health/ready", s.ReadinessCheck)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "unhealthy", body.Checks["database"])
	assert.Equal(t, "unavailable", body.Checks["redis"])
}

func TestReadinessCheck_Healthy(t *testing.T) {
	gormDB, _ := setupMockDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := &Server{db: gormDB, redis: rdb}
	app := fiber.New()
	app.Get("/health/ready", s.ReadinessCheck)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
