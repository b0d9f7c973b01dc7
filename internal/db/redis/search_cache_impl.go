package redisdb

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pressindex/internal/domain/index"
	applog "pressindex/internal/platform/log"
)

// SearchCache 检索结果 Redis 缓存
type SearchCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

var _ index.QueryCache = (*SearchCache)(nil)

// NewSearchCache 创建检索缓存
func NewSearchCache(rdb *redis.Client, ttlSeconds int) *SearchCache {
	ttl := 5 * time.Minute
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return &SearchCache{
		redis:  rdb,
		ttl:    ttl,
		prefix: "pressindex:search:",
	}
}

// Get 从缓存获取检索结果
func (c *SearchCache) Get(ctx context.Context, q *index.Query) (*index.Result, bool) {
	key := c.cacheKey(q)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}

	var result index.Result
	if err := json.Unmarshal(data, &result); err != nil {
		applog.Warn("[Query/Cache] Failed to unmarshal cached result", "error", err)
		return nil, false
	}

	applog.Debug("[Query/Cache] Hit", "key", key)
	return &result, true
}

// Set 写入检索结果到缓存
func (c *SearchCache) Set(ctx context.Context, q *index.Query, result *index.Result) {
	key := c.cacheKey(q)
	data, err := json.Marshal(result)
	if err != nil {
		return
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		applog.Warn("[Query/Cache] Failed to set cache", "key", key, "error", err)
	}
}

// InvalidateAll 清除全部检索缓存（任何索引写入后调用）
func (c *SearchCache) InvalidateAll(ctx context.Context) {
	pattern := c.prefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		applog.Warn("[Query/Cache] Failed to scan cache keys", "error", err)
	}
	if len(keys) > 0 {
		if err := c.redis.Del(ctx, keys...).Err(); err != nil {
			applog.Warn("[Query/Cache] Failed to invalidate", "error", err)
			return
		}
		applog.Info("[Query/Cache] All cache invalidated", "keys_deleted", len(keys))
	}
}

// cacheKey 生成缓存 key = hash(lower(query) + kinds + limit)
func (c *SearchCache) cacheKey(q *index.Query) string {
	kinds := make([]string, len(q.Kinds))
	for i, k := range q.Kinds {
		kinds[i] = string(k)
	}
	sort.Strings(kinds)

	raw := fmt.Sprintf("%s|%s|%d",
		strings.ToLower(q.Text),
		strings.Join(kinds, ","),
		q.Limit,
	)

	hash := sha256.Sum256([]byte(raw))
	return c.prefix + fmt.Sprintf("%x", hash[:12])
}
