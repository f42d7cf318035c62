package model

import (
	"time"
)

// Balance 每用户一行的请求额度计数。
// free_requests 为展示用的当日免费额度（由定时任务重置），
// paid_credits 为一次性购买的付费额度，扣减必须走条件 UPDATE。
type Balance struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	TelegramID   string    `gorm:"size:32;uniqueIndex;not null" json:"telegram_id"`
	FreeRequests int       `gorm:"not null;default:20" json:"free_requests"`
	PaidCredits  int       `gorm:"not null;default:0" json:"paid_credits"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Balance) TableName() string {
	return "balances"
}
