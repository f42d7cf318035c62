package middleware

import (
	"crypto/subtle"
	"net"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/response"
)

// AdminAuth 管理端鉴权：共享令牌 + 可选来源 IP 白名单。
// 未配置令牌时整个管理面关闭，返回 503 而不是放行。
func AdminAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminToken := cfg.Billing.AdminToken
		if adminToken == "" {
			response.Error(c, response.CodeBudgetGuardUnavailable, "Admin interface is not configured.")
			c.Abort()
			return
		}

		token := c.GetHeader("X-Billing-Admin-Token")
		if token == "" {
			if authHeader := c.GetHeader("Authorization"); authHeader != "" {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		if allowlist := cfg.Billing.AdminIPAllowlist; len(allowlist) > 0 {
			clientIP := adminClientIP(c)
			allowed := false
			for _, ip := range allowlist {
				if clientIP == ip {
					allowed = true
					break
				}
			}
			if !allowed {
				response.ForbiddenError(c, "")
				c.Abort()
				return
			}
		}

		c.Next()
	}
}

// adminClientIP 白名单判定用的来源地址。只有直连来自环回地址
// （反向代理在同机）时才信任转发头，否则一律用直连地址。
func adminClientIP(c *gin.Context) string {
	remoteIP, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		remoteIP = c.Request.RemoteAddr
	}

	parsed := net.ParseIP(remoteIP)
	if parsed == nil || !parsed.IsLoopback() {
		return remoteIP
	}

	if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		return realIP
	}
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	return remoteIP
}
