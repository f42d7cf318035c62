package handler

import (
	"errors"
	"log"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/w1ldc/tgllm_go_server/internal/api/middleware"
	"github.com/w1ldc/tgllm_go_server/internal/model/dto"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/response"
	"github.com/w1ldc/tgllm_go_server/internal/service"
)

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Chat 对话入口
// POST /api/v1/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "userId and message are required.")
		return
	}

	// 内部旁路调用可以替任意用户发请求，普通调用只能替自己
	if authID, ok := middleware.GetTelegramID(c); ok {
		if !c.GetBool(middleware.InternalCallKey) && req.UserID != authID {
			response.ForbiddenError(c, "")
			return
		}
	} else if !c.GetBool(middleware.InternalCallKey) {
		response.AuthError(c, "")
		return
	}

	resp, replayed, err := h.chatService.Chat(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRequestInProgress):
			response.Error(c, response.CodeRequestInProgress, "")
		case errors.Is(err, service.ErrUserDailyCapReached):
			response.Error(c, response.CodeUserDailyCapReached, "")
		case errors.Is(err, service.ErrLimitReached):
			response.Error(c, response.CodeLimitReached, "")
		case errors.Is(err, service.ErrRelayFailed):
			log.Printf("Chat relay failed: user=%s err=%v", req.UserID, err)
			response.ServerError(c, "Model backend is temporarily unavailable.")
		default:
			log.Printf("Chat failed: user=%s err=%v", req.UserID, err)
			response.ServerError(c, "")
		}
		return
	}

	if resp.Remaining != nil {
		c.Header("X-Remaining", strconv.Itoa(*resp.Remaining))
	}
	if replayed {
		c.Header("X-Idempotent-Replay", "true")
	}
	response.Success(c, resp)
}
