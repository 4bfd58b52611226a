// Package redis 提供基于 Redis 的易失状态实现。
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/norandomtechie/queup/internal/repository"
)

// RedisRateLimitRepository 用每用户一个 sorted set 保存请求时间戳历史，
// score 为 Unix 纳秒。多实例部署时共享同一份限流状态。
type RedisRateLimitRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRateLimitRepository 创建 RedisRateLimitRepository 实例。
func NewRedisRateLimitRepository(client *redis.Client, keyPrefix string) *RedisRateLimitRepository {
	if client == nil {
		panic("Redis client cannot be nil for RedisRateLimitRepository")
	}
	return &RedisRateLimitRepository{client: client, keyPrefix: keyPrefix}
}

var _ repository.RateLimitRepository = (*RedisRateLimitRepository)(nil)

func (r *RedisRateLimitRepository) key(username string) string {
	return r.keyPrefix + "ratelimit:" + username
}

// Admit 与 sqlite 实现执行同一套 5 槽滑动窗口策略。
func (r *RedisRateLimitRepository) Admit(ctx context.Context, username string, now time.Time) (bool, error) {
	key := r.key(username)
	// 取最近 5 个时间戳 (score 倒序)
	recent, err := r.client.ZRevRangeWithScores(ctx, key, 0, int64(repository.RateLimitSlots-1)).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: read window for %s: %w", username, err)
	}
	if len(recent) >= repository.RateLimitSlots {
		oldest := time.Unix(0, int64(recent[len(recent)-1].Score))
		if now.Sub(oldest) <= repository.RateLimitWindow {
			return false, nil // 拒绝，不记录
		}
	}
	// 放行: 记录本次时间戳，并把历史裁剪到窗口大小，再挂上保底过期
	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-(repository.RateLimitSlots + 1)))
	pipe.Expire(ctx, key, time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("ratelimit: record for %s: %w", username, err)
	}
	return true, nil
}

// Prune 对 Redis 实现是 no-op: 裁剪和过期已在 Admit 的 pipeline 中完成。
func (r *RedisRateLimitRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}
