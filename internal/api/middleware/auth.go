package middleware

import (
	"crypto/subtle"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/jwt"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/response"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/telegram"
)

const (
	TelegramIDKey   = "telegramID"
	TelegramLangKey = "telegramLang"
	InternalCallKey = "internalCall"
)

// TelegramAuth Mini-App 认证中间件。三条通路，按顺序尝试：
//  1. X-Internal-Auth —— 内部服务旁路，常量时间比较共享密钥
//  2. X-Telegram-Init-Data —— initData 签名校验
//  3. Authorization: Bearer —— initData 换发的会话 JWT
//
// dev_skip_auth 仅在未配置 bot token 时生效，便于本地联调。
func TelegramAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret := cfg.Telegram.InternalBypassSecret; secret != "" {
			if got := c.GetHeader("X-Internal-Auth"); got != "" {
				if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
					response.AuthError(c, "")
					c.Abort()
					return
				}
				if userID := c.GetHeader("X-Internal-User-Id"); userID != "" {
					c.Set(TelegramIDKey, userID)
				}
				c.Set(InternalCallKey, true)
				c.Next()
				return
			}
		}

		if initData := c.GetHeader("X-Telegram-Init-Data"); initData != "" {
			user, err := telegram.VerifyInitData(initData, cfg.Telegram.BotToken)
			if err != nil {
				response.AuthError(c, "Invalid Telegram credentials.")
				c.Abort()
				return
			}
			c.Set(TelegramIDKey, strconv.FormatInt(user.ID, 10))
			if user.LanguageCode != "" {
				c.Set(TelegramLangKey, user.LanguageCode)
			}
			c.Next()
			return
		}

		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				response.AuthError(c, "")
				c.Abort()
				return
			}
			claims, err := jwt.ParseToken(tokenString, cfg.JWT.Secret)
			if err != nil {
				response.AuthError(c, "Session expired.")
				c.Abort()
				return
			}
			c.Set(TelegramIDKey, claims.TelegramID)
			c.Next()
			return
		}

		if cfg.Telegram.DevSkipAuth && cfg.Telegram.BotToken == "" {
			if userID := c.GetHeader("X-Dev-User-Id"); userID != "" {
				c.Set(TelegramIDKey, userID)
				c.Next()
				return
			}
		}

		response.AuthError(c, "")
		c.Abort()
	}
}

// RequireUserMatch 路径里的 telegramId 必须和认证身份一致；
// 内部旁路调用不受此限制。
func RequireUserMatch(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(InternalCallKey) {
			c.Next()
			return
		}
		telegramID, ok := GetTelegramID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}
		if pathID := c.Param(param); pathID != "" && pathID != telegramID {
			response.ForbiddenError(c, "")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetTelegramID 从上下文获取认证后的用户标识
func GetTelegramID(c *gin.Context) (string, bool) {
	value, exists := c.Get(TelegramIDKey)
	if !exists {
		return "", false
	}
	telegramID, ok := value.(string)
	return telegramID, ok && telegramID != ""
}
