package model

import (
	"time"
)

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusGrace    = "grace"
	SubscriptionStatusExpired  = "expired"
	SubscriptionStatusCanceled = "canceled"
)

// Subscription 订阅记录。续费不原地更新：旧行置为 expired，插入新行，保留历史。
type Subscription struct {
	ID                     int64      `gorm:"primaryKey" json:"id"`
	TelegramID             string     `gorm:"size:32;not null;index:idx_subscriptions_tg_status,priority:1" json:"telegram_id"`
	PlanCode               string     `gorm:"size:32;not null" json:"plan_code"`
	Provider               string     `gorm:"size:32;not null" json:"provider"`
	Status                 string     `gorm:"size:16;not null;index:idx_subscriptions_tg_status,priority:2" json:"status"`
	ExternalSubscriptionID string     `gorm:"size:191" json:"external_subscription_id,omitempty"`
	StartedAt              time.Time  `gorm:"not null" json:"started_at"`
	CurrentPeriodEnd       *time.Time `gorm:"index" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool       `gorm:"not null;default:false" json:"cancel_at_period_end"`
	Metadata               string     `gorm:"type:text;not null;default:'{}'" json:"metadata"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
