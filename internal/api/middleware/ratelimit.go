package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/w1ldc/tgllm_go_server/internal/pkg/ratelimit"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/response"
)

// RateLimit 固定窗口限流。已认证请求按用户限流，否则按来源 IP。
func RateLimit(store ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := GetTelegramID(c)
		if !ok {
			key = "ip:" + c.ClientIP()
		}

		allowed, retryAfter := store.Allow(c.Request.Context(), key)
		if !allowed {
			if retryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(retryAfter))
			}
			response.Error(c, response.CodeRateLimited, "")
			c.Abort()
			return
		}
		c.Next()
	}
}

// AntiSpam 同一用户同时只允许一个在途请求。
// 处理结束（含 panic 被恢复后）释放占位，TTL 兜底防泄漏。
func AntiSpam(store ratelimit.InflightStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		telegramID, ok := GetTelegramID(c)
		if !ok {
			c.Next()
			return
		}

		// 存储出错时 TryAcquire 自身放行，限流是咨询性的
		acquired, err := store.TryAcquire(c.Request.Context(), telegramID)
		if err == nil && !acquired {
			response.Error(c, response.CodeRateLimited, "Previous request is still processing.")
			c.Abort()
			return
		}

		defer store.Release(c.Request.Context(), telegramID)
		c.Next()
	}
}
