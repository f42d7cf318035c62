package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/w1ldc/tgllm_go_server/internal/model"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(payment *model.Payment) error {
	return r.db.Create(payment).Error
}

func (r *PaymentRepository) GetByID(id int64) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.Where("id = ?", id).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetByProviderExternal 按 (provider, external_payment_id) 查重
func (r *PaymentRepository) GetByProviderExternal(provider, externalPaymentID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.Where("provider = ? AND external_payment_id = ?",
		provider, externalPaymentID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetByIdempotencyKey checkout 幂等重放查询
func (r *PaymentRepository) GetByIdempotencyKey(telegramID, key string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.Where("telegram_id = ? AND idempotency_key = ?",
		telegramID, key).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) UpdateStatus(id int64, status, payload string) error {
	updates := map[string]interface{}{"status": status}
	if payload != "" {
		updates["payload"] = payload
	}
	return r.db.Model(&model.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *PaymentRepository) ListByUser(telegramID string, limit int) ([]model.Payment, error) {
	var payments []model.Payment
	err := r.db.Where("telegram_id = ?", telegramID).
		Order("created_at DESC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) ListPending() ([]model.Payment, error) {
	var payments []model.Payment
	err := r.db.Where("status = ?", model.PaymentStatusPending).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

// TimeoutPending 批量将超龄 pending 置为 failed。
// MySQL 下用 FOR UPDATE SKIP LOCKED 选行，多个调度实例并发扫描
// 不会重复处理同一行；sqlite（测试）不支持行锁，退化为普通查询。
func (r *PaymentRepository) TimeoutPending(cutoff time.Time, batch int, note string) (int64, error) {
	var timedOut int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&model.Payment{}).
			Where("status = ? AND created_at < ?", model.PaymentStatusPending, cutoff).
			Order("created_at ASC").
			Limit(batch)
		if tx.Dialector.Name() == "mysql" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var stale []model.Payment
		if err := query.Find(&stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}

		ids := make([]int64, len(stale))
		for i, p := range stale {
			ids[i] = p.ID
		}

		result := tx.Model(&model.Payment{}).
			Where("id IN ? AND status = ?", ids, model.PaymentStatusPending).
			Updates(map[string]interface{}{
				"status":  model.PaymentStatusFailed,
				"payload": note,
			})
		if result.Error != nil {
			return result.Error
		}
		timedOut = result.RowsAffected
		return nil
	})
	return timedOut, err
}
