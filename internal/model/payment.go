package model

import (
	"time"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// Payment 支付记录，按 (provider, external_payment_id) 去重，只增不删（审计留痕）。
// idempotency_key 按用户唯一，支撑 checkout 幂等重放。
type Payment struct {
	ID                int64     `gorm:"primaryKey" json:"id"`
	TelegramID        string    `gorm:"size:32;not null;index;uniqueIndex:ux_payments_tg_idem,priority:1" json:"telegram_id"`
	Provider          string    `gorm:"size:32;not null;uniqueIndex:ux_payments_provider_ext,priority:1" json:"provider"`
	ExternalPaymentID string    `gorm:"size:191;not null;uniqueIndex:ux_payments_provider_ext,priority:2" json:"external_payment_id"`
	PlanCode          string    `gorm:"size:32" json:"plan_code,omitempty"`
	IdempotencyKey    *string   `gorm:"size:128;uniqueIndex:ux_payments_tg_idem,priority:2" json:"idempotency_key,omitempty"`
	Amount            int       `gorm:"not null" json:"amount"`
	Currency          string    `gorm:"size:8;not null;default:XTR" json:"currency"`
	Status            string    `gorm:"size:16;not null;index" json:"status"`
	Payload           string    `gorm:"type:text;not null;default:'{}'" json:"payload"`
	CreatedAt         time.Time `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}
