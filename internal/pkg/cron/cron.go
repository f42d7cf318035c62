package cron

import (
	"log"
	"time"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/service"
)

// Service 账务侧的后台定时任务：
//   - 每小时一轮订阅维护（降级/终结/授权回收）
//   - 每 10 分钟扫一次超时的 pending 支付
//   - 每小时清理去重表里保留窗口之外的终态行
//   - UTC 零点重置免费额度展示值
type Service struct {
	maintenanceService *service.MaintenanceService
	idempotencyService *service.IdempotencyService
	cfg                *config.Config
	stopChan           chan struct{}
}

func NewService(
	maintenanceService *service.MaintenanceService,
	idempotencyService *service.IdempotencyService,
	cfg *config.Config,
) *Service {
	return &Service{
		maintenanceService: maintenanceService,
		idempotencyService: idempotencyService,
		cfg:                cfg,
		stopChan:           make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runMaintenanceSweep()
	go s.runPendingTimeout()
	go s.runDedupPrune()
	go s.runDailyFreeReset()
	log.Println("Cron service started (maintenance + pending timeout + dedup prune + free reset)")
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runMaintenanceSweep 每小时执行一轮订阅维护
func (s *Service) runMaintenanceSweep() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, err := s.maintenanceService.RunMaintenance(false, "cron"); err != nil {
				log.Printf("Maintenance sweep failed: %v", err)
			}
		}
	}
}

// runPendingTimeout 每 10 分钟清一批超时的 pending 支付
func (s *Service) runPendingTimeout() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, err := s.maintenanceService.TimeoutPendingPayments(); err != nil {
				log.Printf("Pending timeout sweep failed: %v", err)
			}
		}
	}
}

// runDedupPrune 每小时清理保留窗口之外的去重记录
func (s *Service) runDedupPrune() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	retentionHours := s.cfg.Billing.DedupRetentionHours
	if retentionHours <= 0 {
		retentionHours = 48
	}
	retention := time.Duration(retentionHours) * time.Hour

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			pruned, err := s.idempotencyService.Prune(retention)
			if err != nil {
				log.Printf("Dedup prune failed: %v", err)
			} else if pruned > 0 {
				log.Printf("Dedup prune: removed %d rows", pruned)
			}
		}
	}
}

// runDailyFreeReset UTC 零点对齐的每日免费额度重置
func (s *Service) runDailyFreeReset() {
	now := time.Now().UTC()
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	timer := time.NewTimer(nextMidnight.Sub(now))

	for {
		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			if err := s.maintenanceService.ResetFreeAllowances(); err != nil {
				log.Printf("Free allowance reset failed: %v", err)
			} else {
				log.Println("Free allowance reset completed")
			}
			timer.Reset(24 * time.Hour)
		}
	}
}

// RunNow 立即执行一轮维护（手动触发或测试用）
func (s *Service) RunNow() error {
	log.Println("Manual maintenance triggered...")
	if _, err := s.maintenanceService.RunMaintenance(false, "manual"); err != nil {
		return err
	}
	_, err := s.maintenanceService.TimeoutPendingPayments()
	return err
}
