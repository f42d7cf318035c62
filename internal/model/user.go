package model

import (
	"time"
)

type User struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	TelegramID string    `gorm:"size:32;uniqueIndex;not null" json:"telegram_id"`
	Language   string    `gorm:"size:8;default:en" json:"language"`
	Settings   string    `gorm:"type:text" json:"settings"` // 自由格式 JSON 设置
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// UserKey 用户自带的 LLM 提供商密钥（BYOK），仅存密文
type UserKey struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	TelegramID   string    `gorm:"size:32;not null;uniqueIndex:ux_user_keys_tg_provider,priority:1" json:"telegram_id"`
	Provider     string    `gorm:"size:32;not null;uniqueIndex:ux_user_keys_tg_provider,priority:2" json:"provider"`
	EncryptedKey string    `gorm:"type:text;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (UserKey) TableName() string {
	return "user_keys"
}
