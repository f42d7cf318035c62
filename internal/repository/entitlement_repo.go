package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/w1ldc/tgllm_go_server/internal/model"
)

type EntitlementRepository struct {
	db *gorm.DB
}

func NewEntitlementRepository(db *gorm.DB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

// ListValid 未过期的授权
func (r *EntitlementRepository) ListValid(telegramID string) ([]model.Entitlement, error) {
	var rows []model.Entitlement
	err := r.db.Where("telegram_id = ? AND (expires_at IS NULL OR expires_at > ?)",
		telegramID, time.Now().UTC()).
		Order("`key` ASC").
		Find(&rows).Error
	return rows, err
}

// GetValidByKey 按键查单条未过期授权
func (r *EntitlementRepository) GetValidByKey(telegramID, key string) (*model.Entitlement, error) {
	var row model.Entitlement
	err := r.db.Where("telegram_id = ? AND `key` = ? AND (expires_at IS NULL OR expires_at > ?)",
		telegramID, key, time.Now().UTC()).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ReplacePlanRows 整体替换 source='plan' 的授权：先删后插，单事务。
// 授权是"当前订阅"的纯投影，从不增量修改。
func (r *EntitlementRepository) ReplacePlanRows(telegramID string, rows []model.Entitlement) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("telegram_id = ? AND source = ?",
			telegramID, model.EntitlementSourcePlan).
			Delete(&model.Entitlement{}).Error; err != nil {
			return err
		}
		for i := range rows {
			if err := tx.Create(&rows[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeletePlanRows 删除用户全部 plan 来源授权（订阅不再覆盖时）
func (r *EntitlementRepository) DeletePlanRows(telegramID string) (int64, error) {
	result := r.db.Where("telegram_id = ? AND source = ?",
		telegramID, model.EntitlementSourcePlan).
		Delete(&model.Entitlement{})
	return result.RowsAffected, result.Error
}
