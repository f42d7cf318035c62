package model

import (
	"time"
)

const (
	DedupStatusProcessing = "processing"
	DedupStatusCompleted  = "completed"
	DedupStatusFailed     = "failed"
)

// RequestDedup 客户端重试去重记录，(telegram_id, request_id, endpoint) 唯一。
// 短期缓存而非审计，超过保留窗口由定时任务清理。
type RequestDedup struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	TelegramID string    `gorm:"size:32;not null;uniqueIndex:ux_request_dedup_tg_req_ep,priority:1" json:"telegram_id"`
	RequestID  string    `gorm:"size:128;not null;uniqueIndex:ux_request_dedup_tg_req_ep,priority:2" json:"request_id"`
	Endpoint   string    `gorm:"size:64;not null;uniqueIndex:ux_request_dedup_tg_req_ep,priority:3" json:"endpoint"`
	Status     string    `gorm:"size:16;not null" json:"status"`
	Response   string    `gorm:"type:longtext" json:"-"` // 完成后缓存的响应 JSON
	Error      string    `gorm:"size:500" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `gorm:"index" json:"updated_at"`
}

func (RequestDedup) TableName() string {
	return "request_dedup"
}
