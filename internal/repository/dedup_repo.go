package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/w1ldc/tgllm_go_server/internal/model"
)

type DedupRepository struct {
	db *gorm.DB
}

func NewDedupRepository(db *gorm.DB) *DedupRepository {
	return &DedupRepository{db: db}
}

// Claim 尝试以 processing 状态抢占 (telegram_id, request_id, endpoint)。
// 插入成功返回 true；唯一键冲突时返回 false，由调用方读取既有行判定重放。
func (r *DedupRepository) Claim(telegramID, requestID, endpoint string) (bool, error) {
	row := &model.RequestDedup{
		TelegramID: telegramID,
		RequestID:  requestID,
		Endpoint:   endpoint,
		Status:     model.DedupStatusProcessing,
	}
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *DedupRepository) Get(telegramID, requestID, endpoint string) (*model.RequestDedup, error) {
	var row model.RequestDedup
	err := r.db.Where("telegram_id = ? AND request_id = ? AND endpoint = ?",
		telegramID, requestID, endpoint).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ResetFailed 将 failed 行重置回 processing，允许失败后的重试再次执行。
// 条件更新保证并发重试只有一个能拿到执行权。
func (r *DedupRepository) ResetFailed(telegramID, requestID, endpoint string) (bool, error) {
	result := r.db.Model(&model.RequestDedup{}).
		Where("telegram_id = ? AND request_id = ? AND endpoint = ? AND status = ?",
			telegramID, requestID, endpoint, model.DedupStatusFailed).
		Updates(map[string]interface{}{
			"status": model.DedupStatusProcessing,
			"error":  "",
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *DedupRepository) MarkCompleted(telegramID, requestID, endpoint, responseJSON string) error {
	return r.db.Model(&model.RequestDedup{}).
		Where("telegram_id = ? AND request_id = ? AND endpoint = ?",
			telegramID, requestID, endpoint).
		Updates(map[string]interface{}{
			"status":   model.DedupStatusCompleted,
			"response": responseJSON,
		}).Error
}

func (r *DedupRepository) MarkFailed(telegramID, requestID, endpoint, errText string) error {
	return r.db.Model(&model.RequestDedup{}).
		Where("telegram_id = ? AND request_id = ? AND endpoint = ?",
			telegramID, requestID, endpoint).
		Updates(map[string]interface{}{
			"status": model.DedupStatusFailed,
			"error":  errText,
		}).Error
}

// PruneOlderThan 清理保留窗口之外的终态行。processing 行不清理，
// 避免误删仍在执行中的请求。返回删除行数。
func (r *DedupRepository) PruneOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.
		Where("status IN ? AND updated_at < ?",
			[]string{model.DedupStatusCompleted, model.DedupStatusFailed}, cutoff).
		Delete(&model.RequestDedup{})
	return result.RowsAffected, result.Error
}
