package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired 锁被占用
var ErrLockNotAcquired = errors.New("lock not acquired")

const lockRetryInterval = 50 * time.Millisecond

// 令牌匹配时才删除
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TryLock 尝试获取分布式锁，返回持有令牌
func TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if !Enabled() {
		return "", errors.New("redis disabled")
	}
	token := uuid.NewString()
	ok, err := SetNX(ctx, key, token, ttl)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrLockNotAcquired
	}
	return token, nil
}

// Lock 在 ctx 截止前轮询获取分布式锁
func Lock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	for {
		token, err := TryLock(ctx, key, ttl)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return "", err
		}
		timer := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// Unlock 释放分布式锁
func Unlock(ctx context.Context, key, token string) error {
	if !Enabled() || strings.TrimSpace(token) == "" {
		return nil
	}
	return releaseLockScript.Run(ctx, redisClient, []string{buildKey(key)}, token).Err()
}
