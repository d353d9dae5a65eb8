package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"ChatWallet/internal/wallet"
)

// WalletStore 以 JSON 形式把钱包记录存放在 Redis 字符串中。
type WalletStore struct {
	client *goredis.Client
	prefix string
	owned  bool
}

// NewWalletStore 复用调用方的客户端；Close 不会关闭它。
func NewWalletStore(client *goredis.Client, prefix string) *WalletStore {
	return &WalletStore{client: client, prefix: prefix}
}

// OpenWalletStore 自建连接，Close 时一并关闭。
func OpenWalletStore(ctx context.Context, cfg Config) (*WalletStore, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &WalletStore{client: client, prefix: cfg.KeyPrefix, owned: true}, nil
}

// Get 读取会话钱包。
func (s *WalletStore) Get(ctx context.Context, sessionID string) (wallet.Record, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return wallet.Record{}, wallet.ErrNotFound
	}
	if err != nil {
		return wallet.Record{}, fmt.Errorf("Redis 读取钱包失败: %w", err)
	}
	var record wallet.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return wallet.Record{}, fmt.Errorf("解析钱包记录失败: %w", err)
	}
	return record, nil
}

// Create 使用 SETNX 保证每个会话只写入一次。
func (s *WalletStore) Create(ctx context.Context, record wallet.Record) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化钱包记录失败: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(record.SessionID), encoded, 0).Result()
	if err != nil {
		return fmt.Errorf("Redis 写入钱包失败: %w", err)
	}
	if !ok {
		return wallet.ErrWalletConflict
	}
	return nil
}

// Save 仅覆盖已存在的记录。
func (s *WalletStore) Save(ctx context.Context, record wallet.Record) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化钱包记录失败: %w", err)
	}
	ok, err := s.client.SetXX(ctx, s.key(record.SessionID), encoded, 0).Result()
	if err != nil {
		return fmt.Errorf("Redis 更新钱包失败: %w", err)
	}
	if !ok {
		return wallet.ErrNotFound
	}
	return nil
}

// Close 关闭自建的连接。
func (s *WalletStore) Close() error {
	if s == nil || s.client == nil || !s.owned {
		return nil
	}
	return s.client.Close()
}

func (s *WalletStore) key(sessionID string) string {
	return prefixed(s.prefix, "wallet", sessionID)
}
