package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/model"
	"github.com/w1ldc/tgllm_go_server/internal/model/dto"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/response"
	"github.com/w1ldc/tgllm_go_server/internal/repository"
	"github.com/w1ldc/tgllm_go_server/internal/service"
	"github.com/w1ldc/tgllm_go_server/internal/testutil"
)

func setupBillingAdminHandler(t *testing.T) (*BillingAdminHandler, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := &config.Config{
		Billing: config.BillingConfig{
			GraceDays:           3,
			PendingTimeoutHours: 24,
		},
	}

	billingService := service.NewBillingService(
		repository.NewPlanRepository(db),
		repository.NewPaymentRepository(db),
		repository.NewSubscriptionRepository(db),
		repository.NewEntitlementRepository(db),
		repository.NewUserRepository(db),
		nil,
		nil,
		cfg,
	)
	require.NoError(t, billingService.SeedDefaultPlans())

	maintenanceService := service.NewMaintenanceService(
		db,
		repository.NewPaymentRepository(db),
		repository.NewBalanceRepository(db),
		nil,
		cfg,
	)

	handler := NewBillingAdminHandler(billingService, maintenanceService)
	return handler, db, func() { testutil.CleanupTestDB(t, db) }
}

func adminRouter(handler *BillingAdminHandler) *gin.Engine {
	router := gin.New()
	admin := router.Group("/billing/admin")
	admin.POST("/activate", handler.Activate)
	admin.POST("/deactivate", handler.Deactivate)
	admin.POST("/maintenance", handler.RunMaintenance)
	admin.GET("/payments/pending", handler.ListPending)
	admin.POST("/payments/timeout", handler.TimeoutPending)
	admin.POST("/payments/:id/resolve", handler.ResolvePayment)
	return router
}

func TestBillingAdminHandler_ActivateDeactivate(t *testing.T) {
	handler, db, cleanup := setupBillingAdminHandler(t)
	defer cleanup()
	router := adminRouter(handler)

	w := performRequest(router, "POST", "/billing/admin/activate",
		dto.AdminActivateRequest{TelegramID: "100", PlanCode: "pro"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	sub, err := repository.NewSubscriptionRepository(db).GetActive("100")
	require.NoError(t, err)
	assert.Equal(t, "pro", sub.PlanCode)

	w = performRequest(router, "POST", "/billing/admin/deactivate",
		dto.AdminDeactivateRequest{TelegramID: "100"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deactivated":1`)

	_, err = repository.NewSubscriptionRepository(db).GetActive("100")
	assert.Error(t, err)
}

func TestBillingAdminHandler_Activate_BadRequest(t *testing.T) {
	handler, _, cleanup := setupBillingAdminHandler(t)
	defer cleanup()
	router := adminRouter(handler)

	w := performRequest(router, "POST", "/billing/admin/activate",
		map[string]string{"telegramId": "100"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(router, "POST", "/billing/admin/activate",
		dto.AdminActivateRequest{TelegramID: "100", PlanCode: "ghost"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBillingAdminHandler_Maintenance(t *testing.T) {
	handler, db, cleanup := setupBillingAdminHandler(t)
	defer cleanup()
	router := adminRouter(handler)

	testutil.TestSubscription(t, db, "100", "pro",
		testutil.WithPeriodEnd(time.Now().UTC().Add(-time.Hour)))

	// 预演不落库
	w := performRequest(router, "POST", "/billing/admin/maintenance",
		dto.MaintenanceRunRequest{DryRun: true, Reason: "preview"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"moved_to_grace":1`)

	var sub model.Subscription
	require.NoError(t, db.Where("telegram_id = ?", "100").First(&sub).Error)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)

	// body 省略时默认真实执行
	w = performRequest(router, "POST", "/billing/admin/maintenance", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, db.Where("telegram_id = ?", "100").First(&sub).Error)
	assert.Equal(t, model.SubscriptionStatusGrace, sub.Status)
}

func TestBillingAdminHandler_Payments(t *testing.T) {
	handler, db, cleanup := setupBillingAdminHandler(t)
	defer cleanup()
	router := adminRouter(handler)

	stale := testutil.TestPayment(t, db, "100",
		testutil.WithCreatedAt(time.Now().UTC().Add(-48*time.Hour)))
	testutil.TestPayment(t, db, "200",
		testutil.WithExternalID("chk_fresh"))

	w := performRequest(router, "GET", "/billing/admin/payments/pending", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	pending, ok := parseResponse(t, w).Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, pending, 2)

	w = performRequest(router, "POST", "/billing/admin/payments/timeout", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"timed_out":1`)

	got, err := repository.NewPaymentRepository(db).GetByID(stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, got.Status)
}

func TestBillingAdminHandler_ResolvePayment(t *testing.T) {
	handler, db, cleanup := setupBillingAdminHandler(t)
	defer cleanup()
	router := adminRouter(handler)

	payment := testutil.TestPayment(t, db, "100")

	w := performRequest(router, "POST", "/billing/admin/payments/abc/resolve",
		dto.ResolvePaymentRequest{Action: "fail"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeInvalidPaymentID, parseResponse(t, w).Code)

	w = performRequest(router, "POST",
		fmt.Sprintf("/billing/admin/payments/%d/resolve", payment.ID),
		dto.ResolvePaymentRequest{Action: "succeed", Note: "confirmed manually"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 强制成功走完整激活路径
	sub, err := repository.NewSubscriptionRepository(db).GetActive("100")
	require.NoError(t, err)
	assert.Equal(t, "pro", sub.PlanCode)

	// 已结清不能再裁决
	w = performRequest(router, "POST",
		fmt.Sprintf("/billing/admin/payments/%d/resolve", payment.ID),
		dto.ResolvePaymentRequest{Action: "fail"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
