package redisdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	applog "pressindex/internal/platform/log"
)

// releaseScript 仅当锁仍由本次持有者的令牌占用时删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DocumentLock 基于 Redis SET NX 的文档级同步锁。
// 每次获取写入随机令牌，释放时比对令牌，TTL 过期后被他人重新获取的锁不会被误删。
type DocumentLock struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewDocumentLock 创建文档锁；ttl 应大于单个文档同步的最长耗时
func NewDocumentLock(client *redis.Client, ttl time.Duration) *DocumentLock {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &DocumentLock{
		client: client,
		ttl:    ttl,
		prefix: "pressindex:lock:",
	}
}

// Acquire 获取锁，成功时返回本次持有的令牌
func (l *DocumentLock) Acquire(ctx context.Context, key string) (string, bool, error) {
	token := uuid.New().String()
	acquired, err := l.client.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
	if err != nil {
		applog.Warn("[DocumentLock] Failed to acquire lock", "key", key, "error", err)
		return "", false, err
	}

	if !acquired {
		applog.Debug("[DocumentLock] Lock already held", "key", key)
		return "", false, nil
	}
	applog.Debug("[DocumentLock] Lock acquired", "key", key)
	return token, true, nil
}

// Release 释放锁；锁已过期或已被他人持有时不做任何事
func (l *DocumentLock) Release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.prefix + key}, token).Int()
	if err != nil {
		applog.Warn("[DocumentLock] Failed to release lock", "key", key, "error", err)
		return err
	}
	if n == 0 {
		applog.Warn("[DocumentLock] Lock expired before release", "key", key)
		return nil
	}
	applog.Debug("[DocumentLock] Lock released", "key", key)
	return nil
}
