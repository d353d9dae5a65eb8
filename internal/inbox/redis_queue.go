package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"ChatWallet/pkg/logger"
)

// RedisQueueConfig 描述 Redis 队列参数，连接由调用方提供。
type RedisQueueConfig struct {
	Queue     string
	BlockWait time.Duration
	// Backoff 为 Redis 读取失败后的重试间隔。
	Backoff time.Duration
}

// RedisQueue 使用 Redis list 实现跨实例的更新队列。
type RedisQueue struct {
	client  *goredis.Client
	queue   string
	wait    time.Duration
	backoff time.Duration
	log     *slog.Logger
}

// NewRedisQueue 基于已有连接创建 Redis 队列。连接的生命周期由调用方管理。
func NewRedisQueue(client *goredis.Client, cfg RedisQueueConfig) (*RedisQueue, error) {
	if client == nil {
		return nil, errors.New("Redis 客户端不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "chatwallet:updates"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &RedisQueue{client: client, queue: queue, wait: wait, backoff: backoff, log: logger.Named("inbox-redis")}, nil
}

// Publish 将更新投递到 Redis。
func (q *RedisQueue) Publish(ctx context.Context, update Update) error {
	payload, err := encodeUpdate(update)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.queue, payload).Err(); err != nil {
		return fmt.Errorf("Redis 发布更新失败: %w", err)
	}
	return nil
}

// Consume 通过 BRPOP 从 Redis 获取更新，读取失败时退避重试。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workerCount; i++ {
		group.Go(func() error {
			return q.work(ctx, handler)
		})
	}
	return group.Wait()
}

func (q *RedisQueue) work(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
		if err != nil {
			switch {
			case errors.Is(err, goredis.Nil):
				continue
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, goredis.ErrClosed):
				return err
			}
			q.log.Warn("Redis 取更新失败，稍后重试", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(q.backoff):
			}
			continue
		}
		if len(values) != 2 {
			continue
		}
		update, err := decodeUpdate([]byte(values[1]))
		if err != nil {
			q.log.Warn("丢弃无法解析的更新", slog.String("error", err.Error()))
			continue
		}
		_ = handler(ctx, update)
	}
}

// Close 不关闭共享连接。
func (q *RedisQueue) Close() error {
	return nil
}
