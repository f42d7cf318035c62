package alert

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/w1ldc/tgllm_go_server/internal/pkg/telegram"
)

// Sink 限频的出站告警。同一 key 在冷却期内只发一条，
// 发送是 fire-and-forget，失败只打日志，绝不影响业务请求。
type Sink struct {
	client      *telegram.Client
	chatID      string
	prefix      string
	defaultCool time.Duration

	mu        sync.Mutex
	lastByKey map[string]time.Time
}

func NewSink(client *telegram.Client, chatID, prefix string, cooldownSec int) *Sink {
	if prefix == "" {
		prefix = "TG-LLM ALERT"
	}
	if cooldownSec <= 0 {
		cooldownSec = 600
	}
	return &Sink{
		client:      client,
		chatID:      chatID,
		prefix:      prefix,
		defaultCool: time.Duration(cooldownSec) * time.Second,
		lastByKey:   make(map[string]time.Time),
	}
}

func (s *Sink) Enabled() bool {
	return s.client != nil && s.client.Enabled() && s.chatID != ""
}

// shouldSend 冷却判定，通过时顺带记录本次发送时间
func (s *Sink) shouldSend(key string, cooldown time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if last, ok := s.lastByKey[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	s.lastByKey[key] = now
	return true
}

// Send 发送一条告警，返回是否真正发出
func (s *Sink) Send(key, text string, cooldown time.Duration) bool {
	if !s.Enabled() {
		return false
	}
	if cooldown <= 0 {
		cooldown = s.defaultCool
	}
	if !s.shouldSend(key, cooldown) {
		return false
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.client.SendMessage(ctx, s.chatID, fmt.Sprintf("[%s] %s", s.prefix, text)); err != nil {
			log.Printf("Alert send failed: %v", err)
		}
	}()
	return true
}

// NotifyBudgetUsage 全局预算阈值告警：80% / 90% / 100%
func (s *Sink) NotifyBudgetUsage(total, cap int64) bool {
	if cap <= 0 {
		return false
	}
	ratio := float64(total) / float64(cap)
	switch {
	case ratio >= 1:
		return s.Send("budget-100", fmt.Sprintf("Daily budget reached: %d/%d", total, cap), 30*time.Minute)
	case ratio >= 0.9:
		return s.Send("budget-90", fmt.Sprintf("Daily budget at 90%%: %d/%d", total, cap), 30*time.Minute)
	case ratio >= 0.8:
		return s.Send("budget-80", fmt.Sprintf("Daily budget at 80%%: %d/%d", total, cap), 30*time.Minute)
	}
	return false
}

// NotifyWebhookFailure 回调处理失败
func (s *Sink) NotifyWebhookFailure(provider, code, detail string) bool {
	key := fmt.Sprintf("webhook-fail:%s:%s", provider, code)
	msg := fmt.Sprintf("webhook processing failure | provider=%s | code=%s | %s", provider, code, truncate(detail, 300))
	return s.Send(key, msg, 5*time.Minute)
}

// NotifyStalePayments 超时支付批量置失败时告警
func (s *Sink) NotifyStalePayments(count int64) bool {
	return s.Send("stale-payments", fmt.Sprintf("Pending payments timed out: %d", count), 10*time.Minute)
}

// NotifyFinalizeFailure 用量日志写入失败。请求照常返回，
// 但静默丢失会侵蚀上限判定，必须有人看见。
func (s *Sink) NotifyFinalizeFailure(telegramID, endpoint string, err error) bool {
	msg := fmt.Sprintf("usage finalize failed | user=%s | endpoint=%s | err=%s", telegramID, endpoint, truncate(err.Error(), 300))
	return s.Send("finalize-fail", msg, 5*time.Minute)
}

// NotifyGuardUnavailable 预算闸门自身不可用
func (s *Sink) NotifyGuardUnavailable(name string) bool {
	return s.Send("guard-unavailable:"+name, "Guard unavailable: "+name, 15*time.Minute)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
