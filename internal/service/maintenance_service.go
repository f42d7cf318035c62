package service

import (
	"encoding/json"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/model"
	"github.com/w1ldc/tgllm_go_server/internal/model/dto"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/alert"
	"github.com/w1ldc/tgllm_go_server/internal/repository"
)

// MaintenanceService 订阅生命周期维护。核心是 RunMaintenance：
// 过期订阅降级、孤儿授权回收，整个扫描在单事务里完成，
// dryRun 时同样执行全部语句拿到计数，最后回滚。
type MaintenanceService struct {
	db          *gorm.DB
	paymentRepo *repository.PaymentRepository
	balanceRepo *repository.BalanceRepository
	alertSink   *alert.Sink
	cfg         *config.Config
}

func NewMaintenanceService(
	db *gorm.DB,
	paymentRepo *repository.PaymentRepository,
	balanceRepo *repository.BalanceRepository,
	alertSink *alert.Sink,
	cfg *config.Config,
) *MaintenanceService {
	return &MaintenanceService{
		db:          db,
		paymentRepo: paymentRepo,
		balanceRepo: balanceRepo,
		alertSink:   alertSink,
		cfg:         cfg,
	}
}

// RunMaintenance 执行一轮订阅维护：
//  1. 周期已结束但仍在宽限窗口内的 active 订阅降级为 grace
//  2. 超出宽限窗口的 active/grace 订阅终结：
//     cancel_at_period_end 的置 canceled，其余置 expired
//  3. 删除不再被任何有效订阅覆盖的 plan 来源授权
//
// dryRun=true 时全部语句照常执行后回滚，计数与真实执行一致。
func (s *MaintenanceService) RunMaintenance(dryRun bool, reason string) (*dto.MaintenanceResult, error) {
	result := &dto.MaintenanceResult{DryRun: dryRun, Reason: reason}
	now := time.Now().UTC()
	graceWindow := time.Duration(s.cfg.Billing.GraceDays) * 24 * time.Hour
	graceCutoff := now.Add(-graceWindow)

	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if graceWindow > 0 {
		moved := tx.Model(&model.Subscription{}).
			Where("status = ? AND current_period_end IS NOT NULL AND current_period_end <= ? AND current_period_end > ?",
				model.SubscriptionStatusActive, now, graceCutoff).
			Update("status", model.SubscriptionStatusGrace)
		if moved.Error != nil {
			tx.Rollback()
			return nil, moved.Error
		}
		result.MovedToGrace = moved.RowsAffected
	}

	expired := tx.Model(&model.Subscription{}).
		Where("status IN ? AND current_period_end IS NOT NULL AND current_period_end <= ? AND cancel_at_period_end = ?",
			[]string{model.SubscriptionStatusActive, model.SubscriptionStatusGrace}, graceCutoff, false).
		Update("status", model.SubscriptionStatusExpired)
	if expired.Error != nil {
		tx.Rollback()
		return nil, expired.Error
	}
	result.Expired = expired.RowsAffected

	canceled := tx.Model(&model.Subscription{}).
		Where("status IN ? AND current_period_end IS NOT NULL AND current_period_end <= ? AND cancel_at_period_end = ?",
			[]string{model.SubscriptionStatusActive, model.SubscriptionStatusGrace}, graceCutoff, true).
		Update("status", model.SubscriptionStatusCanceled)
	if canceled.Error != nil {
		tx.Rollback()
		return nil, canceled.Error
	}
	result.Canceled = canceled.RowsAffected

	// 仍有 active/grace 订阅覆盖的用户保留授权，其余整组回收
	covering := tx.Session(&gorm.Session{NewDB: true}).
		Model(&model.Subscription{}).
		Select("telegram_id").
		Where("status IN ? AND (current_period_end IS NULL OR current_period_end > ?)",
			[]string{model.SubscriptionStatusActive, model.SubscriptionStatusGrace}, graceCutoff)

	deleted := tx.Where("source = ? AND telegram_id NOT IN (?)",
		model.EntitlementSourcePlan, covering).
		Delete(&model.Entitlement{})
	if deleted.Error != nil {
		tx.Rollback()
		return nil, deleted.Error
	}
	result.EntitlementsDeleted = deleted.RowsAffected

	if dryRun {
		if err := tx.Rollback().Error; err != nil {
			return nil, err
		}
	} else {
		if err := tx.Commit().Error; err != nil {
			return nil, err
		}
	}

	log.Printf("Maintenance done: dryRun=%v grace=%d expired=%d canceled=%d entitlements=%d reason=%s",
		dryRun, result.MovedToGrace, result.Expired, result.Canceled, result.EntitlementsDeleted, reason)
	return result, nil
}

// TimeoutPendingPayments 将超龄的 pending 支付批量置为 failed 并留痕。
// 有处理量时发一条运营告警。
func (s *MaintenanceService) TimeoutPendingPayments() (int64, error) {
	hours := s.cfg.Billing.PendingTimeoutHours
	if hours <= 0 {
		return 0, nil
	}
	batch := s.cfg.Billing.PendingTimeoutBatch
	if batch <= 0 {
		batch = 100
	}

	note, _ := json.Marshal(map[string]interface{}{
		"resolvedBy": "system",
		"reason":     "pending_timeout",
		"resolvedAt": time.Now().UTC().Format(time.RFC3339),
	})

	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	timedOut, err := s.paymentRepo.TimeoutPending(cutoff, batch, string(note))
	if err != nil {
		return 0, err
	}
	if timedOut > 0 {
		log.Printf("Pending payments timed out: count=%d cutoff=%s", timedOut, cutoff.Format(time.RFC3339))
		if s.alertSink != nil {
			s.alertSink.NotifyStalePayments(timedOut)
		}
	}
	return timedOut, nil
}

// ResetFreeAllowances 每日免费额度展示值归位
func (s *MaintenanceService) ResetFreeAllowances() error {
	return s.balanceRepo.ResetAllFree(s.cfg.Quota.FreeDailyCap)
}
