// Package ratelimit 提供限流与并发去重用的咨询性存储。
// 这些状态是有损的、非权威的：丢失只会放松限流，不影响账务正确性。
// 单实例部署用内存实现，多实例部署注入 Redis 实现。
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

// Store 固定窗口限流存储
type Store interface {
	// Allow 判定 key 在当前窗口内是否放行，返回 (放行, 建议等待秒数)
	Allow(ctx context.Context, key string) (bool, int)
}

// InflightStore 同用户并发请求去重（anti-spam）
type InflightStore interface {
	// TryAcquire 抢占 key，已被占用返回 false
	TryAcquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string)
}

// --- 内存实现 ---

// MemoryStore 基于 token bucket 的单机限流
type MemoryStore struct {
	window   time.Duration
	max      int
	mu       sync.Mutex
	limiters map[string]*memoryEntry
}

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewMemoryStore(window time.Duration, max int) *MemoryStore {
	s := &MemoryStore{
		window:   window,
		max:      max,
		limiters: make(map[string]*memoryEntry),
	}
	go s.cleanupLoop()
	return s
}

func (s *MemoryStore) Allow(_ context.Context, key string) (bool, int) {
	s.mu.Lock()
	entry, ok := s.limiters[key]
	if !ok {
		// 窗口内 max 个请求，均摊成速率 + 等量突发
		limit := rate.Limit(float64(s.max) / s.window.Seconds())
		entry = &memoryEntry{limiter: rate.NewLimiter(limit, s.max)}
		s.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	s.mu.Unlock()

	if entry.limiter.Allow() {
		return true, 0
	}
	return false, int(s.window.Seconds())
}

// cleanupLoop 定期清掉久未活跃的 limiter，防止 map 无界增长
func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-5 * s.window)
		s.mu.Lock()
		for key, entry := range s.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(s.limiters, key)
			}
		}
		s.mu.Unlock()
	}
}

// MemoryInflight 单机并发去重
type MemoryInflight struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewMemoryInflight() *MemoryInflight {
	return &MemoryInflight{active: make(map[string]struct{})}
}

func (s *MemoryInflight) TryAcquire(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[key]; ok {
		return false, nil
	}
	s.active[key] = struct{}{}
	return true, nil
}

func (s *MemoryInflight) Release(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, key)
}

// --- Redis 实现 ---

// RedisStore INCR+EXPIRE 固定窗口计数，多实例共享
type RedisStore struct {
	client *redis.Client
	window time.Duration
	max    int
	prefix string
}

func NewRedisStore(client *redis.Client, window time.Duration, max int) *RedisStore {
	return &RedisStore{
		client: client,
		window: window,
		max:    max,
		prefix: "rl:",
	}
}

func (s *RedisStore) Allow(ctx context.Context, key string) (bool, int) {
	redisKey := s.prefix + key
	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		// 咨询性状态：Redis 不可用时放行，不阻断业务
		return true, 0
	}
	if count == 1 {
		s.client.Expire(ctx, redisKey, s.window)
	}
	if count > int64(s.max) {
		ttl, err := s.client.TTL(ctx, redisKey).Result()
		if err != nil || ttl < 0 {
			return false, int(s.window.Seconds())
		}
		return false, int(ttl.Seconds())
	}
	return true, 0
}

// RedisInflight SETNX 抢占 + TTL 兜底释放
type RedisInflight struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisInflight(client *redis.Client, ttl time.Duration) *RedisInflight {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisInflight{client: client, ttl: ttl, prefix: "inflight:"}
}

func (s *RedisInflight) TryAcquire(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, 1, s.ttl).Result()
	if err != nil {
		// 同上：出错时放行
		return true, nil
	}
	return ok, nil
}

func (s *RedisInflight) Release(ctx context.Context, key string) {
	s.client.Del(ctx, s.prefix+key)
}
