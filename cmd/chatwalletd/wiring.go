package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ChatWallet/internal/config"
	"ChatWallet/internal/inbox"
	"ChatWallet/internal/intent"
	"ChatWallet/internal/intent/classifier"
	"ChatWallet/internal/notify"
	"ChatWallet/internal/observability/alerting"
	"ChatWallet/internal/storage/mysql"
	"ChatWallet/internal/storage/postgres"
	redisstore "ChatWallet/internal/storage/redis"
	"ChatWallet/internal/wallet"
	"ChatWallet/pkg/logger"
)

func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}

// needsRedis 判断是否有组件依赖共享的 Redis 连接。
func needsRedis(cfg *config.Config) bool {
	return cfg.Storage.Wallet.Driver == "redis" ||
		cfg.Storage.Lock.Driver == "redis" ||
		cfg.Inbox.Driver == "redis"
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	return redisstore.NewClient(ctx, redisstore.Config{
		Address:   cfg.Address,
		Password:  cfg.Password,
		DB:        cfg.DB,
		KeyPrefix: cfg.KeyPrefix,
	})
}

func openWalletStore(ctx context.Context, cfg *config.Config, client *goredis.Client) (wallet.Store, error) {
	store := cfg.Storage.Wallet
	switch store.Driver {
	case "memory":
		return wallet.NewMemoryStore(), nil
	case "redis":
		if client == nil {
			return nil, errors.New("redis 钱包存储缺少连接")
		}
		return redisstore.NewWalletStore(client, cfg.Storage.Redis.KeyPrefix), nil
	case "mysql":
		return mysql.NewWalletRepository(ctx, mysqlConfig(store))
	case "postgres":
		return postgres.Open(ctx, postgresConfig(store))
	default:
		return nil, fmt.Errorf("未知的钱包存储驱动: %s", store.Driver)
	}
}

func mysqlConfig(store config.WalletStoreConfig) mysql.Config {
	return mysql.Config{
		DSN:             store.DSN,
		MaxOpenConns:    store.MaxOpenConns,
		MaxIdleConns:    store.MaxIdleConns,
		ConnMaxLifetime: seconds(store.ConnMaxLifetimeSeconds),
		ConnMaxIdleTime: seconds(store.ConnMaxIdleTimeSeconds),
	}
}

func postgresConfig(store config.WalletStoreConfig) postgres.Config {
	return postgres.Config{
		DSN:             store.DSN,
		MaxOpenConns:    store.MaxOpenConns,
		MaxIdleConns:    store.MaxIdleConns,
		ConnMaxLifetime: seconds(store.ConnMaxLifetimeSeconds),
		ConnMaxIdleTime: seconds(store.ConnMaxIdleTimeSeconds),
	}
}

func openLocker(cfg *config.Config, client *goredis.Client) (wallet.Locker, error) {
	switch cfg.Storage.Lock.Driver {
	case "memory":
		return wallet.NewMemoryLocker(), nil
	case "redis":
		if client == nil {
			return nil, errors.New("redis 会话锁缺少连接")
		}
		return redisstore.NewLocker(client, cfg.Storage.Redis.KeyPrefix, cfg.Storage.Lock.TTL()), nil
	default:
		return nil, fmt.Errorf("未知的会话锁驱动: %s", cfg.Storage.Lock.Driver)
	}
}

func openQueue(cfg *config.Config, client *goredis.Client) (inbox.Queue, error) {
	in := cfg.Inbox
	switch in.Driver {
	case "memory":
		return inbox.NewMemoryQueue(in.Buffer), nil
	case "redis":
		return inbox.NewRedisQueue(client, inbox.RedisQueueConfig{
			Queue:     in.Redis.Queue,
			BlockWait: seconds(in.Redis.BlockWaitSeconds),
		})
	case "rabbitmq":
		return inbox.NewRabbitMQQueue(inbox.RabbitMQConfig{
			URL:        in.RabbitMQ.URL,
			Queue:      in.RabbitMQ.Queue,
			Prefetch:   in.RabbitMQ.Prefetch,
			Durable:    in.RabbitMQ.Durable,
			AutoDelete: in.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", in.Driver)
	}
}

func newClassifier(cfg config.ClassifierConfig) (intent.Classifier, error) {
	switch cfg.Provider {
	case "http":
		return classifier.NewHTTP(classifier.HTTPConfig{URL: cfg.URL, Timeout: cfg.Timeout()})
	case "openai":
		return classifier.NewOpenAI(classifier.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout(),
		})
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("未知的分类器 provider: %s", cfg.Provider)
	}
}

func newAlertDispatcher(cfg config.AlertingConfig, sender notify.Sender) alerting.Dispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.OpsChatID != 0 {
		notifiers = append(notifiers, &alerting.ChatNotifier{
			Sender: sender,
			ChatID: strconv.FormatInt(cfg.OpsChatID, 10),
		})
	} else {
		logger.L().Info("未配置运维会话，告警仅写入审计日志")
	}
	return alerting.NewFanout(notifiers...)
}

func closeQuietly(name string, closer interface{ Close() error }) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.L().Warn("资源关闭失败", slog.String("component", name), slog.Any("error", err))
	}
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
