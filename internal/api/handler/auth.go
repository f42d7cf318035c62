package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/jwt"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/response"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/telegram"
	"github.com/w1ldc/tgllm_go_server/internal/service"
)

type AuthHandler struct {
	userService *service.UserService
	cfg         *config.Config
}

func NewAuthHandler(userService *service.UserService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		cfg:         cfg,
	}
}

type telegramAuthRequest struct {
	InitData string `json:"initData" binding:"required"`
}

// Telegram 用 initData 换取会话 JWT，顺带建档
// POST /api/v1/auth/telegram
func (h *AuthHandler) Telegram(c *gin.Context) {
	var req telegramAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "initData is required.")
		return
	}

	user, err := telegram.VerifyInitData(req.InitData, h.cfg.Telegram.BotToken)
	if err != nil {
		response.AuthError(c, "Invalid Telegram credentials.")
		return
	}

	telegramID := strconv.FormatInt(user.ID, 10)
	profile, err := h.userService.GetOrCreateProfile(telegramID, user.LanguageCode)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	token, err := jwt.GenerateToken(telegramID, h.cfg.JWT.Secret, h.cfg.JWT.ExpireHours)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, gin.H{
		"token": token,
		"user":  profile,
	})
}
