package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/w1ldc/tgllm_go_server/internal/model"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(tx *model.Transaction) error {
	return r.db.Create(tx).Error
}

// dayStart 当日零点（UTC），所有日上限统一按 UTC 计
func dayStart() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// CountToday 用户当日用量
func (r *TransactionRepository) CountToday(telegramID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.Transaction{}).
		Where("telegram_id = ? AND created_at >= ?", telegramID, dayStart()).
		Count(&count).Error
	return count, err
}

// CountTodayGlobal 全局当日用量，供全局预算闸门使用
func (r *TransactionRepository) CountTodayGlobal() (int64, error) {
	var count int64
	err := r.db.Model(&model.Transaction{}).
		Where("created_at >= ?", dayStart()).
		Count(&count).Error
	return count, err
}

func (r *TransactionRepository) ListByUser(telegramID string, limit int) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.Where("telegram_id = ?", telegramID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}
