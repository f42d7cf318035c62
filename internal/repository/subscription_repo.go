package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/w1ldc/tgllm_go_server/internal/model"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(sub *model.Subscription) error {
	return r.db.Create(sub).Error
}

// GetCurrent 用户的"当前"订阅：状态优先级 active > grace，
// 同状态取周期结束最晚的一条。
func (r *SubscriptionRepository) GetCurrent(telegramID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("telegram_id = ? AND status IN ?",
		telegramID, []string{model.SubscriptionStatusActive, model.SubscriptionStatusGrace}).
		Order("CASE status WHEN 'active' THEN 0 ELSE 1 END, current_period_end DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetActive 仍在周期内的 active 订阅，配额判定只认这一种
func (r *SubscriptionRepository) GetActive(telegramID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("telegram_id = ? AND status = ? AND (current_period_end IS NULL OR current_period_end > ?)",
		telegramID, model.SubscriptionStatusActive, time.Now().UTC()).
		Order("current_period_end DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// MarkExpired 续费时旧行让位，不做原地更新
func (r *SubscriptionRepository) MarkExpired(id int64) error {
	return r.db.Model(&model.Subscription{}).
		Where("id = ?", id).
		Update("status", model.SubscriptionStatusExpired).Error
}

// SetCancelAtPeriodEnd 标记/取消"到期不续"
func (r *SubscriptionRepository) SetCancelAtPeriodEnd(id int64, cancel bool) error {
	return r.db.Model(&model.Subscription{}).
		Where("id = ?", id).
		Update("cancel_at_period_end", cancel).Error
}

// Deactivate 管理端强制下线用户当前订阅
func (r *SubscriptionRepository) Deactivate(telegramID string) (int64, error) {
	result := r.db.Model(&model.Subscription{}).
		Where("telegram_id = ? AND status IN ?",
			telegramID, []string{model.SubscriptionStatusActive, model.SubscriptionStatusGrace}).
		Update("status", model.SubscriptionStatusCanceled)
	return result.RowsAffected, result.Error
}

// CountActive 活跃订阅数（统计用）
func (r *SubscriptionRepository) CountActive() (int64, error) {
	var count int64
	err := r.db.Model(&model.Subscription{}).
		Where("status = ?", model.SubscriptionStatusActive).
		Count(&count).Error
	return count, err
}
