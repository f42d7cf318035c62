package model

import (
	"time"
)

// VaultItem 客户端加密后的数据块，按 (telegram_id, category) 覆盖写。
// 服务端不解密，只做大小与键名校验。
type VaultItem struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	TelegramID    string    `gorm:"size:32;not null;uniqueIndex:ux_vault_tg_category,priority:1" json:"telegram_id"`
	Category      string    `gorm:"size:64;not null;uniqueIndex:ux_vault_tg_category,priority:2" json:"category"`
	EncryptedData string    `gorm:"type:longtext;not null" json:"-"`
	UpdatedAt     time.Time `gorm:"index" json:"updated_at"`
	CreatedAt     time.Time `json:"created_at"`
}

func (VaultItem) TableName() string {
	return "vault_items"
}
