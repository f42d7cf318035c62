package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/response"
)

func adminTestRouter(billingCfg config.BillingConfig) *gin.Engine {
	router := gin.New()
	router.Use(AdminAuth(&config.Config{Billing: billingCfg}))
	router.GET("/admin", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})
	return router
}

func TestAdminAuth_NotConfigured(t *testing.T) {
	router := adminTestRouter(config.BillingConfig{})

	// 未配置令牌时管理面整体关闭
	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("X-Billing-Admin-Token", "anything")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminAuth_Token(t *testing.T) {
	router := adminTestRouter(config.BillingConfig{AdminToken: "admin-secret"})

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("X-Billing-Admin-Token", "admin-secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Bearer 形式同样接受
	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("X-Billing-Admin-Token", "wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.CodeUnauthorized, parseResponse(t, w).Code)

	req = httptest.NewRequest("GET", "/admin", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuth_IPAllowlist(t *testing.T) {
	router := adminTestRouter(config.BillingConfig{
		AdminToken:       "admin-secret",
		AdminIPAllowlist: []string{"10.0.0.5"},
	})

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("X-Billing-Admin-Token", "admin-secret")
	req.RemoteAddr = "10.0.0.5:40000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("X-Billing-Admin-Token", "admin-secret")
	req.RemoteAddr = "10.0.0.9:40000"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminAuth_ForwardedHeaders(t *testing.T) {
	router := adminTestRouter(config.BillingConfig{
		AdminToken:       "admin-secret",
		AdminIPAllowlist: []string{"10.0.0.5"},
	})

	// 直连来自环回地址（同机反代）时信任转发头
	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("X-Billing-Admin-Token", "admin-secret")
	req.Header.Set("X-Real-IP", "10.0.0.5")
	req.RemoteAddr = "127.0.0.1:40000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// 非环回直连伪造转发头无效
	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("X-Billing-Admin-Token", "admin-secret")
	req.Header.Set("X-Real-IP", "10.0.0.5")
	req.RemoteAddr = "203.0.113.7:40000"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// X-Forwarded-For 取第一跳
	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("X-Billing-Admin-Token", "admin-secret")
	req.Header.Set("X-Forwarded-For", "10.0.0.5, 198.51.100.1")
	req.RemoteAddr = "127.0.0.1:40000"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
