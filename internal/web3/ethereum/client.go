package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"ChatWallet/internal/registry"
	"ChatWallet/internal/web3"
)

const erc20ABI = `[
  {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var parsedERC20 = mustParseABI(erc20ABI)

// gasHeadroom is applied to estimates as a percentage.
const gasHeadroom = 120

// Backend is the subset of go-ethereum client methods the wallet relies on.
// Both *ethclient.Client and the simulated backend client satisfy it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call gethcore.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
}

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name    string
	RPCURL  string
	Notes   string
	Timeout time.Duration
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name      string
	notes     string
	timeout   time.Duration
	rpcClient *gethrpc.Client
	backend   Backend

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	client := NewWithBackend(cfg.Name, ethclient.NewClient(rpcClient), cfg.Timeout)
	client.rpcClient = rpcClient
	client.notes = cfg.Notes
	return client, nil
}

// NewWithBackend wraps an existing backend, typically the simulated one in tests.
func NewWithBackend(name string, backend Backend, timeout time.Duration) *Client {
	return &Client{name: name, backend: backend, timeout: timeout}
}

// Name returns the chain name the client was created for.
func (c *Client) Name() string {
	return c.name
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// ChainID returns the remote chain id, cached after the first call.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	ctx, cancel := c.bound(ctx)
	defer cancel()
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}

	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}

// Snapshot gathers lightweight metadata from the chain.
func (c *Client) Snapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	id, err := c.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	number, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{ChainID: id.Uint64(), BlockNumber: number, Notes: c.notes}, nil
}

// NativeBalance returns the latest native coin balance of owner.
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	balance, err := c.backend.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance, nil
}

// TokenBalance calls balanceOf on an ERC-20 contract. The native sentinel is
// routed to NativeBalance.
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if registry.IsNative(token) {
		return c.NativeBalance(ctx, owner)
	}
	data, err := parsedERC20.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("编码 balanceOf 失败: %w", err)
	}

	ctx, cancel := c.bound(ctx)
	defer cancel()
	out, err := c.backend.CallContract(ctx, gethcore.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("查询代币 %s 余额失败: %w", token.Hex(), err)
	}
	values, err := parsedERC20.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("解析代币 %s 余额失败: %v", token.Hex(), err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("代币 %s 返回了非整数余额", token.Hex())
	}
	return balance, nil
}

// Transfer builds, signs and broadcasts an EIP-1559 transfer.
func (c *Client) Transfer(ctx context.Context, signer web3.Signer, req web3.TransferRequest) (common.Hash, error) {
	if signer == nil {
		return common.Hash{}, errors.New("未提供交易签名器")
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return common.Hash{}, errors.New("转账金额必须为正数")
	}
	if req.From == (common.Address{}) {
		req.From = signer.Address()
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	to := req.To
	value := new(big.Int).Set(req.Amount)
	var data []byte
	if !registry.IsNative(req.Token) {
		data, err = parsedERC20.Pack("transfer", req.To, req.Amount)
		if err != nil {
			return common.Hash{}, fmt.Errorf("编码 transfer 失败: %w", err)
		}
		to = req.Token
		value = new(big.Int)
	}

	ctx, cancel := c.bound(ctx)
	defer cancel()

	nonce, err := c.backend.PendingNonceAt(ctx, req.From)
	if err != nil {
		return common.Hash{}, fmt.Errorf("查询交易计数失败: %w", err)
	}
	tipCap, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("获取小费建议失败: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("获取最新区块失败: %w", err)
	}
	feeCap := new(big.Int).Set(tipCap)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	gas, err := c.backend.EstimateGas(ctx, gethcore.CallMsg{
		From:      req.From,
		To:        &to,
		Value:     value,
		Data:      data,
		GasFeeCap: feeCap,
		GasTipCap: tipCap,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("估算 gas 失败: %w", err)
	}

	tx := coretypes.NewTx(&coretypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas * gasHeadroom / 100,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := signer.SignTx(ctx, tx, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("签名交易失败: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("发送交易失败: %w", err)
	}
	return signed.Hash(), nil
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid erc20 abi: %v", err))
	}
	return parsed
}

var _ web3.Client = (*Client)(nil)
