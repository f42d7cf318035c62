package service

import (
	"errors"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/w1ldc/tgllm_go_server/internal/model"
	"github.com/w1ldc/tgllm_go_server/internal/repository"
)

var ErrRequestInProgress = errors.New("request already in progress")

// 请求标识超长时静默截断，保证与唯一索引的列宽一致
const maxRequestIDLen = 128

// BeginOutcome Begin 的三种结局
type BeginOutcome int

const (
	// BeginProceed 抢占成功（或未携带请求标识），照常执行业务
	BeginProceed BeginOutcome = iota
	// BeginReplay 命中已完成的请求，直接重放缓存响应
	BeginReplay
	// BeginInProgress 同一请求仍在执行中
	BeginInProgress
)

type BeginResult struct {
	Outcome  BeginOutcome
	Tracked  bool   // 为 false 表示本次请求没有去重记录，Complete/Fail 为空操作
	Response string // Outcome=BeginReplay 时的缓存响应 JSON
}

// IdempotencyService 客户端重试去重。请求标识由客户端自带，
// 服务端只保证同一 (用户, 标识, 端点) 的业务至多执行一次。
type IdempotencyService struct {
	dedupRepo *repository.DedupRepository
}

func NewIdempotencyService(dedupRepo *repository.DedupRepository) *IdempotencyService {
	return &IdempotencyService{dedupRepo: dedupRepo}
}

// Begin 为请求建立去重档位。未携带 requestID 的请求不做去重，直接放行。
func (s *IdempotencyService) Begin(telegramID, requestID, endpoint string) (*BeginResult, error) {
	requestID = normalizeRequestID(requestID)
	if requestID == "" {
		return &BeginResult{Outcome: BeginProceed}, nil
	}

	claimed, err := s.dedupRepo.Claim(telegramID, requestID, endpoint)
	if err != nil {
		return nil, err
	}
	if claimed {
		return &BeginResult{Outcome: BeginProceed, Tracked: true}, nil
	}

	row, err := s.dedupRepo.Get(telegramID, requestID, endpoint)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 冲突行在读取前被清理掉了，再抢一次
			claimed, err := s.dedupRepo.Claim(telegramID, requestID, endpoint)
			if err != nil {
				return nil, err
			}
			if claimed {
				return &BeginResult{Outcome: BeginProceed, Tracked: true}, nil
			}
			return &BeginResult{Outcome: BeginInProgress, Tracked: true}, nil
		}
		return nil, err
	}

	switch row.Status {
	case model.DedupStatusCompleted:
		return &BeginResult{Outcome: BeginReplay, Tracked: true, Response: row.Response}, nil
	case model.DedupStatusFailed:
		// 上次执行失败，条件重置后允许重试；抢输了说明有并发重试在跑
		reset, err := s.dedupRepo.ResetFailed(telegramID, requestID, endpoint)
		if err != nil {
			return nil, err
		}
		if reset {
			return &BeginResult{Outcome: BeginProceed, Tracked: true}, nil
		}
		return &BeginResult{Outcome: BeginInProgress, Tracked: true}, nil
	default:
		return &BeginResult{Outcome: BeginInProgress, Tracked: true}, nil
	}
}

// Complete 记录成功响应，供后续重试重放
func (s *IdempotencyService) Complete(telegramID, requestID, endpoint, responseJSON string) {
	requestID = normalizeRequestID(requestID)
	if requestID == "" {
		return
	}
	if err := s.dedupRepo.MarkCompleted(telegramID, requestID, endpoint, responseJSON); err != nil {
		log.Printf("Dedup mark completed failed: user=%s request=%s err=%v", telegramID, requestID, err)
	}
}

// Fail 记录失败，放行后续重试
func (s *IdempotencyService) Fail(telegramID, requestID, endpoint, errText string) {
	requestID = normalizeRequestID(requestID)
	if requestID == "" {
		return
	}
	if len(errText) > 500 {
		errText = errText[:500]
	}
	if err := s.dedupRepo.MarkFailed(telegramID, requestID, endpoint, errText); err != nil {
		log.Printf("Dedup mark failed failed: user=%s request=%s err=%v", telegramID, requestID, err)
	}
}

// Prune 清理保留窗口之外的终态记录
func (s *IdempotencyService) Prune(retention time.Duration) (int64, error) {
	return s.dedupRepo.PruneOlderThan(time.Now().Add(-retention))
}

func normalizeRequestID(requestID string) string {
	requestID = strings.TrimSpace(requestID)
	if len(requestID) > maxRequestIDLen {
		requestID = requestID[:maxRequestIDLen]
	}
	return requestID
}
