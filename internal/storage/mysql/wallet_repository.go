package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	mysqldrv "github.com/go-sql-driver/mysql"

	"ChatWallet/internal/wallet"
)

const errDuplicateEntry = 1062

// WalletRepository 实现 wallet.Store，数据落在 wallets 表。
type WalletRepository struct {
	db *sql.DB
}

// NewWalletRepository 建立连接池并执行内嵌迁移。
func NewWalletRepository(ctx context.Context, cfg Config) (*WalletRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &WalletRepository{db: db}, nil
}

// NewWalletRepositoryWithDB 复用已有连接，不执行迁移。
func NewWalletRepositoryWithDB(db *sql.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Open 仅建立连接池，供迁移命令使用。
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	return openDatabase(ctx, cfg)
}

const selectWalletSQL = `SELECT session_id, address, signer_address, key_handle, chain_id, pending_operation, created_at, updated_at
    FROM wallets WHERE session_id = ?`

// Get 按会话查询钱包。
func (r *WalletRepository) Get(ctx context.Context, sessionID string) (wallet.Record, error) {
	var (
		record  wallet.Record
		address string
		signer  string
		pending []byte
		created int64
		updated int64
	)
	err := r.db.QueryRowContext(ctx, selectWalletSQL, sessionID).Scan(
		&record.SessionID, &address, &signer, &record.KeyHandle, &record.ChainID, &pending, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return wallet.Record{}, wallet.ErrNotFound
	}
	if err != nil {
		return wallet.Record{}, fmt.Errorf("查询钱包失败: %w", err)
	}
	record.Address = common.HexToAddress(address)
	record.SignerAddress = common.HexToAddress(signer)
	record.CreatedAt = time.UnixMilli(created).UTC()
	record.UpdatedAt = time.UnixMilli(updated).UTC()
	if len(pending) > 0 {
		var op wallet.PendingOperation
		if err := json.Unmarshal(pending, &op); err != nil {
			return wallet.Record{}, fmt.Errorf("解析待确认操作失败: %w", err)
		}
		record.Pending = &op
	}
	return record, nil
}

const insertWalletSQL = `INSERT INTO wallets
    (session_id, address, signer_address, key_handle, chain_id, pending_operation, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Create 插入新钱包；主键冲突映射为 wallet.ErrWalletConflict。
func (r *WalletRepository) Create(ctx context.Context, record wallet.Record) error {
	pending, err := encodePending(record.Pending)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, insertWalletSQL,
		record.SessionID,
		record.Address.Hex(),
		record.SignerAddress.Hex(),
		record.KeyHandle,
		record.ChainID,
		pending,
		record.CreatedAt.UnixMilli(),
		record.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		var myErr *mysqldrv.MySQLError
		if errors.As(err, &myErr) && myErr.Number == errDuplicateEntry {
			return wallet.ErrWalletConflict
		}
		return fmt.Errorf("写入钱包失败: %w", err)
	}
	return nil
}

const updateWalletSQL = `UPDATE wallets SET pending_operation = ?, updated_at = ?
    WHERE session_id = ?`

const existsWalletSQL = `SELECT COUNT(1) FROM wallets WHERE session_id = ?`

// Save 更新可变字段。地址与密钥句柄创建后不可修改。
func (r *WalletRepository) Save(ctx context.Context, record wallet.Record) error {
	pending, err := encodePending(record.Pending)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, updateWalletSQL, pending, record.UpdatedAt.UnixMilli(), record.SessionID)
	if err != nil {
		return fmt.Errorf("更新钱包失败: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("读取更新结果失败: %w", err)
	}
	if affected > 0 {
		return nil
	}
	// MySQL 默认只统计实际变化的行，需要再确认记录是否存在。
	var count int64
	if err := r.db.QueryRowContext(ctx, existsWalletSQL, record.SessionID).Scan(&count); err != nil {
		return fmt.Errorf("查询钱包失败: %w", err)
	}
	if count == 0 {
		return wallet.ErrNotFound
	}
	return nil
}

// Close 关闭底层数据库连接。
func (r *WalletRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func encodePending(op *wallet.PendingOperation) (any, error) {
	if op == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("序列化待确认操作失败: %w", err)
	}
	return string(encoded), nil
}
