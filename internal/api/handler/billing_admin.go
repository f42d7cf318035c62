package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/w1ldc/tgllm_go_server/internal/model/dto"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/response"
	"github.com/w1ldc/tgllm_go_server/internal/service"
)

// BillingAdminHandler 管理面：手工开通/下线、维护任务、卡单处置。
// 鉴权由 AdminAuth 中间件完成，这里只做业务。
type BillingAdminHandler struct {
	billingService     *service.BillingService
	maintenanceService *service.MaintenanceService
}

func NewBillingAdminHandler(
	billingService *service.BillingService,
	maintenanceService *service.MaintenanceService,
) *BillingAdminHandler {
	return &BillingAdminHandler{
		billingService:     billingService,
		maintenanceService: maintenanceService,
	}
}

// Activate 绕过支付直接开通订阅
// POST /api/v1/billing/admin/activate
func (h *BillingAdminHandler) Activate(c *gin.Context) {
	var req dto.AdminActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "telegramId and planCode are required.")
		return
	}
	sub, err := h.billingService.AdminActivate(&req)
	if err != nil {
		billingError(c, err)
		return
	}
	response.Success(c, sub)
}

// Deactivate 强制下线订阅并回收授权
// POST /api/v1/billing/admin/deactivate
func (h *BillingAdminHandler) Deactivate(c *gin.Context) {
	var req dto.AdminDeactivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "telegramId is required.")
		return
	}
	affected, err := h.billingService.AdminDeactivate(req.TelegramID)
	if err != nil {
		billingError(c, err)
		return
	}
	response.Success(c, gin.H{"deactivated": affected})
}

// RunMaintenance 手动触发一轮维护，支持 dryRun 预演
// POST /api/v1/billing/admin/maintenance
func (h *BillingAdminHandler) RunMaintenance(c *gin.Context) {
	var req dto.MaintenanceRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// body 可省略，默认真实执行
		req = dto.MaintenanceRunRequest{}
	}
	if req.Reason == "" {
		req.Reason = "admin"
	}
	result, err := h.maintenanceService.RunMaintenance(req.DryRun, req.Reason)
	if err != nil {
		billingError(c, err)
		return
	}
	response.Success(c, result)
}

// ListPending 等待结清的支付
// GET /api/v1/billing/admin/payments/pending
func (h *BillingAdminHandler) ListPending(c *gin.Context) {
	payments, err := h.billingService.ListPendingPayments()
	if err != nil {
		billingError(c, err)
		return
	}
	response.Success(c, payments)
}

// TimeoutPending 立即执行一轮超时扫描
// POST /api/v1/billing/admin/payments/timeout
func (h *BillingAdminHandler) TimeoutPending(c *gin.Context) {
	timedOut, err := h.maintenanceService.TimeoutPendingPayments()
	if err != nil {
		billingError(c, err)
		return
	}
	response.Success(c, gin.H{"timed_out": timedOut})
}

// ResolvePayment 人工裁决单笔 pending 支付
// POST /api/v1/billing/admin/payments/:id/resolve
func (h *BillingAdminHandler) ResolvePayment(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, response.CodeInvalidPaymentID, "")
		return
	}

	var req dto.ResolvePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "action is required.")
		return
	}

	payment, err := h.billingService.ResolvePayment(id, req.Action, req.Note)
	if err != nil {
		billingError(c, err)
		return
	}
	response.Success(c, payment)
}
