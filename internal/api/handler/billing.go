package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/api/middleware"
	"github.com/w1ldc/tgllm_go_server/internal/model/dto"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/alert"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/response"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/telegram"
	"github.com/w1ldc/tgllm_go_server/internal/service"
)

type BillingHandler struct {
	billingService *service.BillingService
	tgClient       *telegram.Client
	alertSink      *alert.Sink
	cfg            *config.Config
}

func NewBillingHandler(
	billingService *service.BillingService,
	tgClient *telegram.Client,
	alertSink *alert.Sink,
	cfg *config.Config,
) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
		tgClient:       tgClient,
		alertSink:      alertSink,
		cfg:            cfg,
	}
}

// billingError 账务侧错误到错误码的统一映射
func billingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPlanNotFound):
		response.Error(c, response.CodePlanNotFound, "")
	case errors.Is(err, service.ErrInvalidWebhook):
		response.Error(c, response.CodeInvalidWebhookPayload, "")
	case errors.Is(err, service.ErrPaymentNotFound):
		response.Error(c, response.CodePaymentNotFound, "")
	case errors.Is(err, service.ErrPaymentNotPending):
		response.Error(c, response.CodePaymentNotPending, "")
	case errors.Is(err, service.ErrInvalidAction):
		response.Error(c, response.CodeInvalidAction, "")
	case errors.Is(err, service.ErrNoSubscription):
		response.ParamError(c, "No active subscription.")
	default:
		log.Printf("Billing error: %v", err)
		response.ServerError(c, "")
	}
}

// ListPlans 可购套餐目录
// GET /api/v1/billing/plans
func (h *BillingHandler) ListPlans(c *gin.Context) {
	plans, err := h.billingService.ListPlans()
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, plans)
}

// Me 当前用户账务总览
// GET /api/v1/billing/me
func (h *BillingHandler) Me(c *gin.Context) {
	telegramID, ok := middleware.GetTelegramID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	me, err := h.billingService.GetBillingMe(telegramID)
	if err != nil {
		billingError(c, err)
		return
	}
	response.Success(c, me)
}

// Checkout 创建支付会话，幂等键走 X-Idempotency-Key
// POST /api/v1/billing/checkout
func (h *BillingHandler) Checkout(c *gin.Context) {
	telegramID, ok := middleware.GetTelegramID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "planCode is required.")
		return
	}

	resp, err := h.billingService.CreateCheckout(c.Request.Context(), telegramID, &req,
		c.GetHeader("X-Idempotency-Key"))
	if err != nil {
		billingError(c, err)
		return
	}
	response.Success(c, resp)
}

// Webhook 通用支付回调入口，提供商标签来自 query 参数
// POST /api/v1/billing/webhook?provider=xxx
func (h *BillingHandler) Webhook(c *gin.Context) {
	if !h.checkWebhookSecret(c.GetHeader("X-Webhook-Secret")) {
		response.AuthError(c, "")
		return
	}

	provider := c.Query("provider")
	if provider == "" {
		provider = h.cfg.Billing.DefaultProvider
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.Error(c, response.CodeInvalidWebhookPayload, "")
		return
	}

	event, err := h.billingService.ParseWebhook(provider, body)
	if err != nil {
		h.notifyWebhookFailure(provider, err)
		billingError(c, err)
		return
	}

	result, err := h.billingService.ProcessWebhook(event)
	if err != nil {
		h.notifyWebhookFailure(provider, err)
		billingError(c, err)
		return
	}
	response.Success(c, result)
}

// TelegramUpdate Bot webhook：pre_checkout_query 校验 + successful_payment 入账。
// 无论更新体是什么都回 200，Telegram 收不到 200 会无限重投。
// POST /api/v1/billing/webhook/telegram
func (h *BillingHandler) TelegramUpdate(c *gin.Context) {
	if !h.checkWebhookSecret(c.GetHeader("X-Telegram-Bot-Api-Secret-Token")) {
		response.AuthError(c, "")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.Success(c, gin.H{"handled": false})
		return
	}

	var update telegram.Update
	if err := json.Unmarshal(body, &update); err != nil {
		response.Success(c, gin.H{"handled": false})
		return
	}

	if update.PreCheckoutQuery != nil {
		h.handlePreCheckout(c, update.PreCheckoutQuery)
		return
	}

	if update.Message != nil && update.Message.SuccessfulPayment != nil {
		event, err := h.billingService.ParseWebhook(service.ProviderTelegramStars, body)
		if err != nil {
			h.notifyWebhookFailure(service.ProviderTelegramStars, err)
			response.Success(c, gin.H{"handled": false})
			return
		}
		result, err := h.billingService.ProcessWebhook(event)
		if err != nil {
			h.notifyWebhookFailure(service.ProviderTelegramStars, err)
			response.Success(c, gin.H{"handled": false})
			return
		}
		response.Success(c, result)
		return
	}

	response.Success(c, gin.H{"handled": false})
}

func (h *BillingHandler) handlePreCheckout(c *gin.Context, query *telegram.PreCheckoutQuery) {
	validationErr := h.billingService.ValidatePreCheckout(query)

	errMsg := ""
	if validationErr != nil {
		errMsg = validationErr.Error()
		log.Printf("Pre-checkout rejected: query=%s reason=%s", query.ID, errMsg)
	}
	if err := h.tgClient.AnswerPreCheckoutQuery(c.Request.Context(), query.ID,
		validationErr == nil, errMsg); err != nil {
		log.Printf("Answer pre-checkout failed: query=%s err=%v", query.ID, err)
	}
	response.Success(c, gin.H{"ok": validationErr == nil})
}

// GetSubscription 订阅状态
// GET /api/v1/billing/subscription
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	telegramID, ok := middleware.GetTelegramID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	status, err := h.billingService.GetSubscriptionStatus(telegramID)
	if err != nil {
		billingError(c, err)
		return
	}
	response.Success(c, status)
}

// CancelSubscription 到期不续
// POST /api/v1/billing/subscription/cancel
func (h *BillingHandler) CancelSubscription(c *gin.Context) {
	telegramID, ok := middleware.GetTelegramID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	status, err := h.billingService.CancelSubscription(telegramID)
	if err != nil {
		billingError(c, err)
		return
	}
	response.Success(c, status)
}

// ResumeSubscription 撤销到期不续
// POST /api/v1/billing/subscription/resume
func (h *BillingHandler) ResumeSubscription(c *gin.Context) {
	telegramID, ok := middleware.GetTelegramID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	status, err := h.billingService.ResumeSubscription(telegramID)
	if err != nil {
		billingError(c, err)
		return
	}
	response.Success(c, status)
}

// checkWebhookSecret 回调共享密钥校验。未配置密钥时拒绝一切回调。
func (h *BillingHandler) checkWebhookSecret(got string) bool {
	secret := h.cfg.Billing.WebhookSecret
	if secret == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}

func (h *BillingHandler) notifyWebhookFailure(provider string, err error) {
	log.Printf("Webhook processing failed: provider=%s err=%v", provider, err)
	if h.alertSink != nil {
		h.alertSink.NotifyWebhookFailure(provider, "process_error", err.Error())
	}
}
