package quota

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQuotaExceeded - 체험 생성 횟수 소진
var ErrQuotaExceeded = errors.New("trial generation limit reached")

// Usage - 체험 사용량
type Usage struct {
	TrialID      string `json:"trialId"`
	UsedCount    int    `json:"usedCount"`
	MaxCount     int    `json:"maxCount"`
	LimitReached bool   `json:"limitReached"`
}

// Limiter - 체험 사용자별 생성 횟수 제한
type Limiter interface {
	// Check - 사용량 조회, 한도 도달 시 ErrQuotaExceeded
	Check(ctx context.Context, trialID string) (*Usage, error)
	// Consume - 생성 성공 후 1회 차감
	Consume(ctx context.Context, trialID string) (*Usage, error)
}

func usage(trialID string, used, max int) *Usage {
	return &Usage{
		TrialID:      trialID,
		UsedCount:    used,
		MaxCount:     max,
		LimitReached: used >= max,
	}
}

// RedisLimiter - Redis INCR + TTL 기반
type RedisLimiter struct {
	rdb    *redis.Client
	max    int
	window time.Duration
}

// NewRedisLimiter - Redis 기반 Limiter 생성
func NewRedisLimiter(rdb *redis.Client, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, max: max, window: window}
}

func redisKey(trialID string) string {
	return fmt.Sprintf("trial:usage:%s", trialID)
}

func (l *RedisLimiter) Check(ctx context.Context, trialID string) (*Usage, error) {
	used, err := l.rdb.Get(ctx, redisKey(trialID)).Int()
	if err == redis.Nil {
		return usage(trialID, 0, l.max), nil
	}
	if err != nil {
		log.Printf("⚠️ [Quota] Redis error: %v", err)
		return nil, fmt.Errorf("failed to read trial usage: %w", err)
	}

	u := usage(trialID, used, l.max)
	if u.LimitReached {
		return u, ErrQuotaExceeded
	}
	return u, nil
}

func (l *RedisLimiter) Consume(ctx context.Context, trialID string) (*Usage, error) {
	key := redisKey(trialID)
	used, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to increment trial usage: %w", err)
	}
	// 첫 사용 시점부터 window 시작
	if used == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			log.Printf("⚠️ [Quota] Failed to set TTL for %s: %v", key, err)
		}
	}

	log.Printf("📊 [Quota] Trial usage updated: trial=%s, count=%d/%d", trialID, used, l.max)
	return usage(trialID, int(used), l.max), nil
}

// MemoryLimiter - Redis 없을 때 사용하는 in-memory 구현
type MemoryLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	count     int
	expiresAt time.Time
}

// NewMemoryLimiter - in-memory Limiter 생성
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:     max,
		window:  window,
		now:     time.Now,
		entries: make(map[string]*memoryEntry),
	}
}

// entry - 만료된 항목은 제거 후 nil 반환 (호출자가 lock 보유)
func (l *MemoryLimiter) entry(trialID string) *memoryEntry {
	e, ok := l.entries[trialID]
	if !ok {
		return nil
	}
	if !l.now().Before(e.expiresAt) {
		delete(l.entries, trialID)
		return nil
	}
	return e
}

func (l *MemoryLimiter) Check(ctx context.Context, trialID string) (*Usage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	used := 0
	if e := l.entry(trialID); e != nil {
		used = e.count
	}
	u := usage(trialID, used, l.max)
	if u.LimitReached {
		return u, ErrQuotaExceeded
	}
	return u, nil
}

func (l *MemoryLimiter) Consume(ctx context.Context, trialID string) (*Usage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entry(trialID)
	if e == nil {
		e = &memoryEntry{expiresAt: l.now().Add(l.window)}
		l.entries[trialID] = e
	}
	e.count++
	return usage(trialID, e.count, l.max), nil
}

// New - Redis 클라이언트가 있으면 Redis, 없으면 in-memory
func New(rdb *redis.Client, max int, window time.Duration) Limiter {
	if rdb == nil {
		log.Printf("⚠️ [Quota] Redis unavailable - using in-memory trial quota")
		return NewMemoryLimiter(max, window)
	}
	log.Printf("✅ [Quota] Redis trial quota enabled (%d per %v)", max, window)
	return NewRedisLimiter(rdb, max, window)
}
