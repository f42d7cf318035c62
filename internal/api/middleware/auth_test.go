package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/jwt"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testBotToken  = "12345:TEST_TOKEN"
	testJWTSecret = "test-secret-key-for-middleware"
)

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func authTestConfig() *config.Config {
	return &config.Config{
		Telegram: config.TelegramConfig{
			BotToken:             testBotToken,
			InternalBypassSecret: "internal-secret",
		},
		JWT: config.JWTConfig{Secret: testJWTSecret},
	}
}

func authTestRouter(cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(TelegramAuth(cfg))
	router.GET("/test", func(c *gin.Context) {
		telegramID, _ := GetTelegramID(c)
		c.JSON(http.StatusOK, gin.H{"telegram_id": telegramID})
	})
	return router
}

// signTestInitData 按 Mini-App 规则生成带合法签名的 initData
func signTestInitData(botToken string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secretMac.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))

	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func TestTelegramAuth_InitData(t *testing.T) {
	router := authTestRouter(authTestConfig())

	initData := signTestInitData(testBotToken, map[string]string{
		"user":      `{"id":100,"first_name":"Alice","language_code":"en"}`,
		"auth_date": "1700000000",
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Telegram-Init-Data", initData)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"telegram_id":"100"`)
}

func TestTelegramAuth_InitData_BadSignature(t *testing.T) {
	router := authTestRouter(authTestConfig())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Telegram-Init-Data", "user=%7B%22id%22%3A100%7D&hash=deadbeef")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.CodeUnauthorized, parseResponse(t, w).Code)
}

func TestTelegramAuth_JWT(t *testing.T) {
	router := authTestRouter(authTestConfig())

	token, err := jwt.GenerateToken("100", testJWTSecret, 24)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"telegram_id":"100"`)
}

func TestTelegramAuth_JWT_Invalid(t *testing.T) {
	router := authTestRouter(authTestConfig())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 缺 Bearer 前缀
	req = httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "token-without-scheme")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTelegramAuth_InternalBypass(t *testing.T) {
	router := authTestRouter(authTestConfig())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Internal-Auth", "internal-secret")
	req.Header.Set("X-Internal-User-Id", "42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"telegram_id":"42"`)

	// 密钥不对直接拒绝，不落入其他通路
	req = httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Internal-Auth", "wrong-secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTelegramAuth_NoCredentials(t *testing.T) {
	router := authTestRouter(authTestConfig())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTelegramAuth_DevSkip(t *testing.T) {
	// 仅在未配置 bot token 时生效
	cfg := &config.Config{
		Telegram: config.TelegramConfig{DevSkipAuth: true},
		JWT:      config.JWTConfig{Secret: testJWTSecret},
	}
	router := authTestRouter(cfg)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Dev-User-Id", "999")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"telegram_id":"999"`)

	// 配置了 bot token 后 dev 通路关闭
	cfg.Telegram.BotToken = testBotToken
	router = authTestRouter(cfg)
	req = httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Dev-User-Id", "999")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireUserMatch(t *testing.T) {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(TelegramIDKey, "100")
		c.Next()
	})
	router.GET("/user/:telegramId", RequireUserMatch("telegramId"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	req := httptest.NewRequest("GET", "/user/100", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// 访问他人的资源被拒
	req = httptest.NewRequest("GET", "/user/200", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireUserMatch_InternalBypass(t *testing.T) {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(InternalCallKey, true)
		c.Next()
	})
	router.GET("/user/:telegramId", RequireUserMatch("telegramId"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	// 内部调用可以操作任意用户
	req := httptest.NewRequest("GET", "/user/200", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
