package model

import (
	"time"
)

const (
	ReservationTypePlan       = "plan"
	ReservationTypePaidCredit = "paid_credit"
	ReservationTypeFree       = "free"
)

// Transaction 只追加的用量日志，每个完成的请求一行。
// 当日计数查询依赖 created_at 索引，是各类日上限判定的数据来源。
type Transaction struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	TelegramID string    `gorm:"size:32;not null;index:idx_transactions_tg_created,priority:1" json:"telegram_id"`
	Type       string    `gorm:"size:16;not null" json:"type"` // plan / paid_credit / free
	Endpoint   string    `gorm:"size:64;not null" json:"endpoint"`
	Model      string    `gorm:"size:64" json:"model,omitempty"`
	Provider   string    `gorm:"size:32" json:"provider,omitempty"`
	CreatedAt  time.Time `gorm:"index:idx_transactions_tg_created,priority:2;index" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}
