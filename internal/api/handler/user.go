package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/w1ldc/tgllm_go_server/internal/api/middleware"
	"github.com/w1ldc/tgllm_go_server/internal/model/dto"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/response"
	"github.com/w1ldc/tgllm_go_server/internal/service"
)

type UserHandler struct {
	userService  *service.UserService
	quotaService *service.QuotaService
}

func NewUserHandler(userService *service.UserService, quotaService *service.QuotaService) *UserHandler {
	return &UserHandler{
		userService:  userService,
		quotaService: quotaService,
	}
}

// pathTelegramID 路径参数里的用户标识（已由 RequireUserMatch 校验过归属）
func pathTelegramID(c *gin.Context) string {
	if id := c.Param("telegramId"); id != "" {
		return id
	}
	id, _ := middleware.GetTelegramID(c)
	return id
}

// GetProfile 用户档案
// GET /api/v1/user/:telegramId
func (h *UserHandler) GetProfile(c *gin.Context) {
	lang := c.GetString(middleware.TelegramLangKey)
	profile, err := h.userService.GetOrCreateProfile(pathTelegramID(c), lang)
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, profile)
}

// UpdateSettings 更新语言与客户端设置
// PUT /api/v1/user/:telegramId/settings
func (h *UserHandler) UpdateSettings(c *gin.Context) {
	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "")
		return
	}
	if err := h.userService.UpdateSettings(pathTelegramID(c), &req); err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, nil)
}

// GetQuota 配额总览
// GET /api/v1/user/:telegramId/quota
func (h *UserHandler) GetQuota(c *gin.Context) {
	info, err := h.quotaService.GetQuotaInfo(pathTelegramID(c))
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, info)
}

// ListTransactions 最近用量记录
// GET /api/v1/user/:telegramId/transactions
func (h *UserHandler) ListTransactions(c *gin.Context) {
	txs, err := h.quotaService.ListTransactions(pathTelegramID(c), 50)
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, txs)
}

// SetKey 保存 BYOK 密钥
// POST /api/v1/user/:telegramId/keys
func (h *UserHandler) SetKey(c *gin.Context) {
	var req dto.ByokRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "provider and apiKey are required.")
		return
	}
	if err := h.userService.SetKey(pathTelegramID(c), req.Provider, req.APIKey); err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, nil)
}

// DeleteKey 删除 BYOK 密钥
// DELETE /api/v1/user/:telegramId/keys/:provider
func (h *UserHandler) DeleteKey(c *gin.Context) {
	provider := c.Param("provider")
	if provider == "" {
		response.ParamError(c, "")
		return
	}
	if err := h.userService.DeleteKey(pathTelegramID(c), provider); err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, nil)
}

// GetSession 会话历史
// GET /api/v1/user/:telegramId/session
func (h *UserHandler) GetSession(c *gin.Context) {
	messages, err := h.userService.GetSession(c.Request.Context(), pathTelegramID(c))
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, messages)
}

// ClearSession 清空会话历史
// DELETE /api/v1/user/:telegramId/session
func (h *UserHandler) ClearSession(c *gin.Context) {
	if err := h.userService.ClearSession(c.Request.Context(), pathTelegramID(c)); err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, nil)
}

// GetStats 公开统计
// GET /api/v1/stats
func (h *UserHandler) GetStats(c *gin.Context) {
	stats, err := h.userService.GetStats()
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, stats)
}
