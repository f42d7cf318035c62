package dto

import (
	"time"

	"github.com/w1ldc/tgllm_go_server/internal/model"
)

type CheckoutRequest struct {
	PlanCode string                 `json:"planCode" binding:"required"`
	Provider string                 `json:"provider"`
	Metadata map[string]interface{} `json:"metadata"`
}

type CheckoutResponse struct {
	Reused          bool                   `json:"reused"`
	Mode            string                 `json:"mode"`
	Provider        string                 `json:"provider"`
	Plan            *model.Plan            `json:"plan"`
	Payment         *model.Payment         `json:"payment"`
	ProviderPayload map[string]interface{} `json:"providerPayload,omitempty"`
}

// WebhookEvent 各提供商回调归一化后的内部事件。
// Provider 为显式标签，由解析器填写，不做字段嗅探推断。
type WebhookEvent struct {
	Provider               string                 `json:"provider"`
	ExternalPaymentID      string                 `json:"externalPaymentId"`
	ExternalSubscriptionID string                 `json:"externalSubscriptionId"`
	TelegramID             string                 `json:"telegramId"`
	PlanCode               string                 `json:"planCode"`
	Amount                 int                    `json:"amount"`
	Currency               string                 `json:"currency"`
	Status                 string                 `json:"status"`
	Metadata               map[string]interface{} `json:"metadata"`
}

type WebhookResult struct {
	Status              string `json:"status"`
	SubscriptionApplied bool   `json:"subscriptionApplied"`
}

type BillingMe struct {
	Subscription *model.Subscription `json:"subscription"`
	Entitlements []model.Entitlement `json:"entitlements"`
	Payments     []model.Payment     `json:"payments"`
}

type SubscriptionStatus struct {
	Active            bool       `json:"active"`
	Status            string     `json:"status,omitempty"`
	PlanCode          string     `json:"plan_code,omitempty"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
}

// MaintenanceResult 维护任务统计。dryRun=true 时仅计数并回滚。
type MaintenanceResult struct {
	DryRun              bool   `json:"dry_run"`
	Reason              string `json:"reason"`
	MovedToGrace        int64  `json:"moved_to_grace"`
	Expired             int64  `json:"expired"`
	Canceled            int64  `json:"canceled"`
	EntitlementsDeleted int64  `json:"entitlements_deleted"`
}

type ResolvePaymentRequest struct {
	Action string `json:"action" binding:"required"` // fail / succeed
	Note   string `json:"note"`
}

type AdminActivateRequest struct {
	TelegramID             string `json:"telegramId" binding:"required"`
	PlanCode               string `json:"planCode" binding:"required"`
	Provider               string `json:"provider"`
	ExternalSubscriptionID string `json:"externalSubscriptionId"`
}

type AdminDeactivateRequest struct {
	TelegramID string `json:"telegramId" binding:"required"`
}

type MaintenanceRunRequest struct {
	DryRun bool   `json:"dryRun"`
	Reason string `json:"reason"`
}
