package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

func incrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// 遥测键约定：在线状态靠心跳键的 TTL 自然衰减，进度与下载队列随心跳覆盖。
const (
	onlineTTL   = 90 * time.Second
	progressTTL = 5 * time.Minute
)

func deviceOnlineKey(mobileID string) string {
	return fmt.Sprintf("device:online:%s", mobileID)
}

func deviceProgressKey(mobileID string) string {
	return fmt.Sprintf("device:progress:%s", mobileID)
}

func deviceDownloadsKey(mobileID string) string {
	return fmt.Sprintf("device:downloads:%s", mobileID)
}
