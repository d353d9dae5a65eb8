package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"ChatWallet/pkg/logger"
)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker 是基于 SET NX PX 的分布式会话锁。
type Locker struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// LockerOption 定制锁行为。
type LockerOption func(*Locker)

// WithRetryInterval 设置抢锁失败后的重试间隔。
func WithRetryInterval(d time.Duration) LockerOption {
	return func(l *Locker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// NewLocker 创建分布式锁。ttl 是持锁进程崩溃后锁自动失效的时间。
func NewLocker(client *goredis.Client, prefix string, ttl time.Duration, opts ...LockerOption) *Locker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	l := &Locker{client: client, prefix: prefix, ttl: ttl, retry: 25 * time.Millisecond}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Lock 阻塞直到拿到锁或 ctx 结束。
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	full := prefixed(l.prefix, "lock", key)
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("Redis 加锁失败: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 调用方上下文可能已取消，释放使用独立上下文。
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := releaseScript.Run(releaseCtx, l.client, []string{full}, token).Err()
			if err != nil && !errors.Is(err, goredis.Nil) {
				logger.Named("redis-lock").Warn("释放会话锁失败",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		})
	}, nil
}
