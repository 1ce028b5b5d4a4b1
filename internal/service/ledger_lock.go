package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zhiyin-next/internal/cache"
	"github.com/zhiyin-next/internal/constants"
	"github.com/zhiyin-next/internal/logger"
)

const defaultLedgerLockTimeout = 10 * time.Second

// LedgerLocker 按大使串行化帐本写操作
type LedgerLocker interface {
	Lock(ctx context.Context, partnerCode string) (func(), error)
}

// LocalLedgerLocker 进程内按推荐代码加锁
type LocalLedgerLocker struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	timeout time.Duration
}

// NewLocalLedgerLocker 创建进程内帐本锁
func NewLocalLedgerLocker(timeout time.Duration) *LocalLedgerLocker {
	if timeout <= 0 {
		timeout = defaultLedgerLockTimeout
	}
	return &LocalLedgerLocker{
		slots:   make(map[string]chan struct{}),
		timeout: timeout,
	}
}

// Lock 获取锁，返回释放函数
func (l *LocalLedgerLocker) Lock(ctx context.Context, partnerCode string) (func(), error) {
	key := strings.ToUpper(strings.TrimSpace(partnerCode))
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-waitCtx.Done():
		return nil, ErrLedgerLockTimeout
	}
}

// RedisLedgerLocker 基于 Redis 的跨进程帐本锁
type RedisLedgerLocker struct {
	timeout time.Duration
	ttl     time.Duration
}

// NewRedisLedgerLocker 创建 Redis 帐本锁
func NewRedisLedgerLocker(timeout time.Duration) *RedisLedgerLocker {
	if timeout <= 0 {
		timeout = defaultLedgerLockTimeout
	}
	return &RedisLedgerLocker{timeout: timeout, ttl: 3 * timeout}
}

// Lock 获取锁，返回释放函数
func (l *RedisLedgerLocker) Lock(ctx context.Context, partnerCode string) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	key := fmt.Sprintf("%s:%s", constants.CacheKeyPartnerLockScope, strings.ToUpper(strings.TrimSpace(partnerCode)))
	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	token, err := cache.Lock(waitCtx, key, l.ttl)
	if err != nil {
		if waitCtx.Err() != nil {
			return nil, ErrLedgerLockTimeout
		}
		return nil, wrapSystemError(err)
	}
	return func() {
		if err := cache.Unlock(context.Background(), key, token); err != nil {
			logger.Warnw("partner_lock_release_failed", "partner_code", partnerCode, "error", err)
		}
	}, nil
}

// NewLedgerLocker Redis 可用时使用分布式锁，否则退化为进程内锁
func NewLedgerLocker(timeout time.Duration) LedgerLocker {
	if cache.Enabled() {
		return NewRedisLedgerLocker(timeout)
	}
	return NewLocalLedgerLocker(timeout)
}
