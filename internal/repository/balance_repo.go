package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/w1ldc/tgllm_go_server/internal/model"
)

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// EnsureRow 懒创建余额行，已存在时静默跳过
func (r *BalanceRepository) EnsureRow(telegramID string, freeDefault int) error {
	balance := &model.Balance{
		TelegramID:   telegramID,
		FreeRequests: freeDefault,
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(balance).Error
}

func (r *BalanceRepository) Get(telegramID string) (*model.Balance, error) {
	var balance model.Balance
	err := r.db.Where("telegram_id = ?", telegramID).First(&balance).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// DebitPaidCredit 条件扣减一枚付费额度。
// 谓词和扣减在同一条 UPDATE 里求值，并发下同一用户最多一个赢家，
// 余额不会被扣到负数。返回扣减是否成功。
func (r *BalanceRepository) DebitPaidCredit(telegramID string) (bool, error) {
	result := r.db.Model(&model.Balance{}).
		Where("telegram_id = ? AND paid_credits > 0", telegramID).
		Update("paid_credits", gorm.Expr("paid_credits - 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CreditPaid 回滚时归还一枚付费额度
func (r *BalanceRepository) CreditPaid(telegramID string) error {
	return r.db.Model(&model.Balance{}).
		Where("telegram_id = ?", telegramID).
		Update("paid_credits", gorm.Expr("paid_credits + 1")).Error
}

// AddPaidCredits 充值付费额度（一次性购买）
func (r *BalanceRepository) AddPaidCredits(telegramID string, n int) error {
	return r.db.Model(&model.Balance{}).
		Where("telegram_id = ?", telegramID).
		Update("paid_credits", gorm.Expr("paid_credits + ?", n)).Error
}

// ResetAllFree 将所有用户的展示用免费额度重置为当日配额
func (r *BalanceRepository) ResetAllFree(freeDefault int) error {
	return r.db.Model(&model.Balance{}).
		Where("free_requests <> ?", freeDefault).
		Update("free_requests", freeDefault).Error
}
