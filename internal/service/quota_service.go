package service

import (
	"encoding/json"
	"errors"
	"log"

	"gorm.io/gorm"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/model"
	"github.com/w1ldc/tgllm_go_server/internal/model/dto"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/alert"
	"github.com/w1ldc/tgllm_go_server/internal/repository"
)

var (
	ErrLimitReached        = errors.New("daily limit reached")
	ErrUserDailyCapReached = errors.New("user daily cap reached")
)

// Reservation 一次已获准请求的凭据，通过 Rollback 或 Finalize 结清。
// Field 记录被扣减的余额字段；为空表示本次获准没有动任何计数器，
// 其成本只在 Finalize 写入用量日志时体现。
type Reservation struct {
	Type      string `json:"type"`
	Field     string `json:"field,omitempty"`
	Remaining *int   `json:"remaining,omitempty"`
}

// FinalizeMeta 用量日志的附加信息
type FinalizeMeta struct {
	Endpoint string
	Model    string
	Provider string
}

type QuotaService struct {
	balanceRepo     *repository.BalanceRepository
	transactionRepo *repository.TransactionRepository
	entitlementRepo *repository.EntitlementRepository
	alertSink       *alert.Sink
	cfg             *config.Config
}

func NewQuotaService(
	balanceRepo *repository.BalanceRepository,
	transactionRepo *repository.TransactionRepository,
	entitlementRepo *repository.EntitlementRepository,
	alertSink *alert.Sink,
	cfg *config.Config,
) *QuotaService {
	return &QuotaService{
		balanceRepo:     balanceRepo,
		transactionRepo: transactionRepo,
		entitlementRepo: entitlementRepo,
		alertSink:       alertSink,
		cfg:             cfg,
	}
}

// Reserve 为一次请求预留额度。判定顺序（前面的命中即终局）：
//  1. 单用户绝对日上限 —— 付费套餐同样受限的硬天花板
//  2. 套餐 dailyCap 授权 —— 命中即按套餐计，不动余额
//  3. 付费额度条件扣减 —— 单条 UPDATE 原子判定，并发安全
//  4. 免费层（无上限配置则无条件放行，否则按当日计数）
//
// 全局日上限由上游闸门中间件把守，不在本方法内。
func (s *QuotaService) Reserve(telegramID string) (*Reservation, error) {
	usedToday, err := s.transactionRepo.CountToday(telegramID)
	if err != nil {
		return nil, err
	}

	if cap := s.cfg.Quota.UserDailyCap; cap > 0 && usedToday >= int64(cap) {
		return nil, ErrUserDailyCapReached
	}

	if dailyCap, ok, err := s.planDailyCap(telegramID); err != nil {
		return nil, err
	} else if ok {
		if usedToday >= int64(dailyCap) {
			return nil, ErrLimitReached
		}
		remaining := dailyCap - int(usedToday) - 1
		return &Reservation{Type: model.ReservationTypePlan, Remaining: &remaining}, nil
	}

	if err := s.balanceRepo.EnsureRow(telegramID, s.cfg.Quota.FreeDailyCap); err != nil {
		return nil, err
	}

	debited, err := s.balanceRepo.DebitPaidCredit(telegramID)
	if err != nil {
		return nil, err
	}
	if debited {
		remaining := 0
		if balance, err := s.balanceRepo.Get(telegramID); err == nil {
			remaining = balance.PaidCredits
		}
		return &Reservation{
			Type:      model.ReservationTypePaidCredit,
			Field:     "paid_credits",
			Remaining: &remaining,
		}, nil
	}

	freeCap := s.cfg.Quota.FreeDailyCap
	if freeCap <= 0 {
		return &Reservation{Type: model.ReservationTypeFree}, nil
	}
	if usedToday >= int64(freeCap) {
		return nil, ErrLimitReached
	}
	remaining := freeCap - int(usedToday) - 1
	return &Reservation{Type: model.ReservationTypeFree, Remaining: &remaining}, nil
}

// Rollback 精确归还 Reserve 扣掉的东西。没动计数器的预留是空操作。
// 失败只打日志：HTTP 响应在调用时已成定局，不再改变。
func (s *QuotaService) Rollback(telegramID string, reservation *Reservation) {
	if reservation == nil || reservation.Field != "paid_credits" {
		return
	}
	if err := s.balanceRepo.CreditPaid(telegramID); err != nil {
		log.Printf("Quota rollback failed: user=%s err=%v", telegramID, err)
	}
}

// Finalize 追加一行用量日志。写入失败不影响用户已拿到的响应，
// 但上限判定依赖这张表，所以失败必须告警而不是无声吞掉。
func (s *QuotaService) Finalize(telegramID string, reservation *Reservation, meta FinalizeMeta) {
	if reservation == nil {
		return
	}
	tx := &model.Transaction{
		TelegramID: telegramID,
		Type:       reservation.Type,
		Endpoint:   meta.Endpoint,
		Model:      meta.Model,
		Provider:   meta.Provider,
	}
	if err := s.transactionRepo.Create(tx); err != nil {
		log.Printf("Usage finalize failed: user=%s endpoint=%s err=%v", telegramID, meta.Endpoint, err)
		if s.alertSink != nil {
			s.alertSink.NotifyFinalizeFailure(telegramID, meta.Endpoint, err)
		}
	}
}

// GlobalUsedToday 全局当日用量，供预算闸门查询
func (s *QuotaService) GlobalUsedToday() (int64, error) {
	return s.transactionRepo.CountTodayGlobal()
}

// ListTransactions 用户最近的用量记录
func (s *QuotaService) ListTransactions(telegramID string, limit int) ([]model.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.transactionRepo.ListByUser(telegramID, limit)
}

// planDailyCap 读取套餐授权里的 dailyCap，没有有效授权时 ok=false
func (s *QuotaService) planDailyCap(telegramID string) (int, bool, error) {
	row, err := s.entitlementRepo.GetValidByKey(telegramID, "dailyCap")
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}

	var cap float64
	if err := json.Unmarshal([]byte(row.Value), &cap); err != nil || cap <= 0 {
		return 0, false, nil
	}
	return int(cap), true, nil
}

// GetQuotaInfo 用户配额总览（前端展示用）
func (s *QuotaService) GetQuotaInfo(telegramID string) (*dto.QuotaInfo, error) {
	usedToday, err := s.transactionRepo.CountToday(telegramID)
	if err != nil {
		return nil, err
	}

	info := &dto.QuotaInfo{
		Tier:      "free",
		UsedToday: int(usedToday),
	}

	if planRow, err := s.entitlementRepo.GetValidByKey(telegramID, "plan_code"); err == nil {
		var code string
		if json.Unmarshal([]byte(planRow.Value), &code) == nil && code != "" {
			info.Tier = code
		}
	}

	if dailyCap, ok, err := s.planDailyCap(telegramID); err == nil && ok {
		info.DailyCap = dailyCap
	} else {
		info.DailyCap = s.cfg.Quota.FreeDailyCap
	}

	if info.DailyCap > 0 {
		remaining := info.DailyCap - info.UsedToday
		if remaining < 0 {
			remaining = 0
		}
		info.Remaining = &remaining
	}

	if balance, err := s.balanceRepo.Get(telegramID); err == nil {
		info.PaidCredits = balance.PaidCredits
	}

	return info, nil
}
