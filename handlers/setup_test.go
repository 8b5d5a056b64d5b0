package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"electrafusion-backend/config"
	"electrafusion-backend/live"
	"electrafusion-backend/models"
	"electrafusion-backend/registry"
	"electrafusion-backend/routes"
	"electrafusion-backend/session"
	"electrafusion-backend/tally"
	"electrafusion-backend/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// testEnv 测试用的完整服务
type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	hub    *live.Hub
}

// SetupTestEnvironment sets up the Gin router and in-memory SQLite database for testing.
func SetupTestEnvironment(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Environment:        "development",
		SessionTTL:         time.Hour,
		BallotTimeout:      5 * time.Second,
		GlobalRateLimit:    100,
		UserRateLimit:      10,
		CORSAllowedOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	db := testutil.NewDB(t)
	hub := live.NewHub()
	sessions := session.NewService(db, cfg.SessionTTL)
	polls := registry.NewGormRegistry(db)
	engine := tally.NewEngine(db, tally.WithNotifier(hub), tally.WithTimeout(cfg.BallotTimeout))

	router := routes.SetupRouter(routes.Deps{
		Config:   cfg,
		DB:       db,
		Sessions: sessions,
		Polls:    polls,
		Engine:   engine,
		Hub:      hub,
	})
	return &testEnv{router: router, db: db, hub: hub}
}

// request 发送JSON请求，token为空时不带Authorization头
func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// register 注册用户并返回令牌
func (e *testEnv) register(t *testing.T, email string) string {
	t.Helper()
	w := e.request(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": email, "password": "secret"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

// admin 注册一个管理员并返回令牌
func (e *testEnv) admin(t *testing.T) string {
	t.Helper()
	token := e.register(t, "admin@example.com")
	require.NoError(t, e.db.Model(&models.User{}).Where("email = ?", "admin@example.com").Update("is_admin", true).Error)
	return token
}

// createPoll 以管理员身份创建投票
func (e *testEnv) createPoll(t *testing.T, adminToken string, body gin.H) *models.Poll {
	t.Helper()
	w := e.request(t, http.MethodPost, "/api/polls", adminToken, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var poll models.Poll
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &poll))
	return &poll
}

func lunchPoll() gin.H {
	return gin.H{
		"title":       "Lunch?",
		"description": "Friday team lunch",
		"options":     []gin.H{{"text": "Pizza"}, {"text": "Tacos"}, {"text": "Sushi"}},
	}
}

// errorBody 错误响应
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}
