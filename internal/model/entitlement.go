package model

import (
	"time"
)

const EntitlementSourcePlan = "plan"

// Entitlement 派生的功能授权。source='plan' 的行完全由订阅生命周期管理，
// 每次激活整体替换，不做增量修改，保证与当前订阅一致。
type Entitlement struct {
	ID         int64      `gorm:"primaryKey" json:"id"`
	TelegramID string     `gorm:"size:32;not null;uniqueIndex:ux_entitlements_tg_key_src,priority:1" json:"telegram_id"`
	Key        string     `gorm:"size:64;not null;uniqueIndex:ux_entitlements_tg_key_src,priority:2" json:"key"`
	Value      string     `gorm:"type:text;not null" json:"value"` // JSON 值
	Source     string     `gorm:"size:16;not null;uniqueIndex:ux_entitlements_tg_key_src,priority:3" json:"source"`
	ExpiresAt  *time.Time `gorm:"index" json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Entitlement) TableName() string {
	return "entitlements"
}
