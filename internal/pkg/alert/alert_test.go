package alert

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSink_ShouldSend_Cooldown(t *testing.T) {
	sink := NewSink(nil, "", "", 600)

	assert.True(t, sink.shouldSend("k1", time.Minute))
	// 冷却期内同 key 被抑制
	assert.False(t, sink.shouldSend("k1", time.Minute))
	// 不同 key 互不影响
	assert.True(t, sink.shouldSend("k2", time.Minute))

	// 冷却过后放行
	sink.mu.Lock()
	sink.lastByKey["k1"] = time.Now().Add(-2 * time.Minute)
	sink.mu.Unlock()
	assert.True(t, sink.shouldSend("k1", time.Minute))
}

func TestSink_Disabled(t *testing.T) {
	// 未配置客户端或 chatID 时所有通知都是空操作
	sink := NewSink(nil, "", "", 0)
	assert.False(t, sink.Enabled())
	assert.False(t, sink.Send("k", "text", 0))
	assert.False(t, sink.NotifyBudgetUsage(100, 100))
	assert.False(t, sink.NotifyStalePayments(3))
	assert.False(t, sink.NotifyWebhookFailure("telegram_stars", "activation_failed", "boom"))
}

func TestSink_NotifyBudgetUsage_BelowThreshold(t *testing.T) {
	sink := NewSink(nil, "", "", 0)
	assert.False(t, sink.NotifyBudgetUsage(79, 100))
	assert.False(t, sink.NotifyBudgetUsage(0, 0))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcde", truncate("abcdefgh", 5))
	assert.Len(t, truncate(strings.Repeat("x", 1000), 300), 300)
}
