// Package postgres persists chat wallets in PostgreSQL through gorm.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ChatWallet/internal/wallet"
)

// Config 描述连接参数。
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// walletRow 是 wallets 表的映射。
type walletRow struct {
	SessionID        string  `gorm:"column:session_id;primaryKey;size:64"`
	Address          string  `gorm:"column:address;size:42;not null;index"`
	SignerAddress    string  `gorm:"column:signer_address;size:42;not null"`
	KeyHandle        string  `gorm:"column:key_handle;size:128;not null"`
	ChainID          uint64  `gorm:"column:chain_id;not null"`
	PendingOperation *string `gorm:"column:pending_operation;type:jsonb"`
	CreatedAt        int64   `gorm:"column:created_at;autoCreateTime:false;not null"`
	UpdatedAt        int64   `gorm:"column:updated_at;autoUpdateTime:false;not null"`
}

func (walletRow) TableName() string { return "wallets" }

// WalletStore 实现 wallet.Store。
type WalletStore struct {
	db *gorm.DB
}

// Open 连接数据库并同步表结构。
func Open(ctx context.Context, cfg Config) (*WalletStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("PostgreSQL DSN 不能为空")
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("连接 PostgreSQL 失败: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取连接池失败: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("无法连接到 PostgreSQL: %w", err)
	}
	store := &WalletStore{db: db}
	if err := store.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// Migrate 同步 wallets 表结构。
func (s *WalletStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&walletRow{}); err != nil {
		return fmt.Errorf("同步 wallets 表失败: %w", err)
	}
	return nil
}

// Get 按会话查询钱包。
func (s *WalletStore) Get(ctx context.Context, sessionID string) (wallet.Record, error) {
	var row walletRow
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Record{}, wallet.ErrNotFound
	}
	if err != nil {
		return wallet.Record{}, fmt.Errorf("查询钱包失败: %w", err)
	}
	return fromRow(row)
}

// Create 插入新钱包；唯一键冲突映射为 wallet.ErrWalletConflict。
func (s *WalletStore) Create(ctx context.Context, record wallet.Record) error {
	row, err := toRow(record)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return wallet.ErrWalletConflict
		}
		return fmt.Errorf("写入钱包失败: %w", err)
	}
	return nil
}

// Save 更新待确认操作与更新时间。
func (s *WalletStore) Save(ctx context.Context, record wallet.Record) error {
	row, err := toRow(record)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&walletRow{}).
		Where("session_id = ?", record.SessionID).
		Updates(map[string]any{
			"pending_operation": row.PendingOperation,
			"updated_at":        row.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("更新钱包失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return wallet.ErrNotFound
	}
	return nil
}

// Close 关闭连接池。
func (s *WalletStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(record wallet.Record) (walletRow, error) {
	row := walletRow{
		SessionID:     record.SessionID,
		Address:       record.Address.Hex(),
		SignerAddress: record.SignerAddress.Hex(),
		KeyHandle:     record.KeyHandle,
		ChainID:       record.ChainID,
		CreatedAt:     record.CreatedAt.UnixMilli(),
		UpdatedAt:     record.UpdatedAt.UnixMilli(),
	}
	if record.Pending != nil {
		encoded, err := json.Marshal(record.Pending)
		if err != nil {
			return walletRow{}, fmt.Errorf("序列化待确认操作失败: %w", err)
		}
		pending := string(encoded)
		row.PendingOperation = &pending
	}
	return row, nil
}

func fromRow(row walletRow) (wallet.Record, error) {
	record := wallet.Record{
		SessionID:     row.SessionID,
		Address:       common.HexToAddress(row.Address),
		SignerAddress: common.HexToAddress(row.SignerAddress),
		KeyHandle:     row.KeyHandle,
		ChainID:       row.ChainID,
		CreatedAt:     time.UnixMilli(row.CreatedAt).UTC(),
		UpdatedAt:     time.UnixMilli(row.UpdatedAt).UTC(),
	}
	if row.PendingOperation != nil && *row.PendingOperation != "" {
		var op wallet.PendingOperation
		if err := json.Unmarshal([]byte(*row.PendingOperation), &op); err != nil {
			return wallet.Record{}, fmt.Errorf("解析待确认操作失败: %w", err)
		}
		record.Pending = &op
	}
	return record, nil
}
