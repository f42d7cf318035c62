package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/response"
)

// 典型的提示注入开场白，命中即拒绝。粗筛而非完备防御。
var shieldPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior)\s+(instructions|rules)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(dan|jailbroken)`),
	regexp.MustCompile(`(?i)reveal\s+(your\s+)?(system\s+prompt|instructions)`),
	regexp.MustCompile(`(?i)print\s+(your\s+)?(system\s+prompt|initial\s+instructions)`),
}

// ChatInputGuard 对话入口的输入校验：长度上限 + 提示注入粗筛。
// 只窥探 body 不消费，读完后原样放回给后续的绑定。
func ChatInputGuard(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 8<<20))
		if err != nil {
			response.ParamError(c, "")
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		var req struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &req); err != nil || strings.TrimSpace(req.Message) == "" {
			response.ParamError(c, "Message is required.")
			c.Abort()
			return
		}

		maxChars := cfg.Chat.MaxInputChars
		if maxChars <= 0 {
			maxChars = 4000
		}
		if len([]rune(req.Message)) > maxChars {
			response.ParamError(c, "Message is too long.")
			c.Abort()
			return
		}

		if cfg.Chat.PromptShield {
			for _, pattern := range shieldPatterns {
				if pattern.MatchString(req.Message) {
					response.ParamError(c, "Message rejected.")
					c.Abort()
					return
				}
			}
		}

		c.Next()
	}
}
